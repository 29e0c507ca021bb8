// Package mrz decodes the ICAO TD1 machine-readable zone printed on identity
// documents: three fixed-width lines of 30 characters with `<` as filler.
package mrz

import (
	"fmt"
	"regexp"
	"strings"
)

// LineLength is the fixed width of every TD1 line.
const LineLength = 30

// birthYearPivot separates 19xx from 20xx birth years: YY >= 30 means 19YY.
const birthYearPivot = 30

// checkWeights cycle positionally over the checked substring.
var checkWeights = [3]int{7, 3, 1}

// Structural shapes of the three TD1 lines. A candidate triple is accepted
// only when every line is exactly 30 characters and matches its regexp.
var (
	reLine1 = regexp.MustCompile(`^([A-Z<]{2})([A-Z<]{3})(\d{9})(\d)(\d{12})<{3}$`)
	reLine2 = regexp.MustCompile(`^(\d{6})(\d)([MFX<])(\d{6})(\d)([A-Z<]{3})[A-Z0-9<]{12}$`)
	reLine3 = regexp.MustCompile(`^[A-Z<]{30}$`)
)

// Record is the decoded content of a TD1 triple. It is a transient value:
// callers fold it into their extraction output rather than persisting it.
type Record struct {
	DocumentCode string `json:"document_code"`
	IssuingState string `json:"issuing_state"`

	DocumentNumber           string `json:"document_number"`
	DocumentNumberCheckValid bool   `json:"document_number_check_valid"`
	LongDocumentNumber       string `json:"long_document_number"`

	BirthDate           string `json:"birth_date"`
	BirthDateCheckValid bool   `json:"birth_date_check_valid"`
	Sex                 string `json:"sex"`

	ExpiryDate           string `json:"expiry_date"`
	ExpiryDateCheckValid bool   `json:"expiry_date_check_valid"`
	Nationality          string `json:"nationality"`

	Surname    string   `json:"surname"`
	GivenNames []string `json:"given_names,omitempty"`
}

// ChecksValid reports whether every check digit in the record verified.
// A false value is a confidence signal, not a decode failure.
func (r *Record) ChecksValid() bool {
	return r.DocumentNumberCheckValid && r.BirthDateCheckValid && r.ExpiryDateCheckValid
}

// CheckDigit computes the ICAO 9303 check digit over s: digits keep their
// value, letters map A-Z to 10-35, filler counts as 0; weights cycle [7,3,1].
func CheckDigit(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += charValue(s[i]) * checkWeights[i%3]
	}
	return sum % 10
}

func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 0
	}
}

// Decode parses a structurally valid TD1 triple. It returns an error only
// when a line fails the structural match; check-digit mismatches are recorded
// on the result instead.
func Decode(line1, line2, line3 string) (*Record, error) {
	m1 := reLine1.FindStringSubmatch(line1)
	if m1 == nil {
		return nil, fmt.Errorf("mrz: line 1 does not match TD1 layout")
	}
	m2 := reLine2.FindStringSubmatch(line2)
	if m2 == nil {
		return nil, fmt.Errorf("mrz: line 2 does not match TD1 layout")
	}
	if !reLine3.MatchString(line3) {
		return nil, fmt.Errorf("mrz: line 3 does not match TD1 layout")
	}

	rec := &Record{
		DocumentCode:       strings.Trim(m1[1], "<"),
		IssuingState:       strings.Trim(m1[2], "<"),
		DocumentNumber:     m1[3],
		LongDocumentNumber: m1[5],
		Sex:                sexCode(m2[3]),
		Nationality:        strings.Trim(m2[6], "<"),
	}

	rec.DocumentNumberCheckValid = CheckDigit(m1[3]) == int(m1[4][0]-'0')
	rec.BirthDate = expandDate(m2[1], true)
	rec.BirthDateCheckValid = CheckDigit(m2[1]) == int(m2[2][0]-'0')
	rec.ExpiryDate = expandDate(m2[4], false)
	rec.ExpiryDateCheckValid = CheckDigit(m2[4]) == int(m2[5][0]-'0')

	rec.Surname, rec.GivenNames = splitNames(line3)

	return rec, nil
}

// Scan searches raw OCR output for a TD1 triple. It first looks for three
// consecutive structurally valid lines, then falls back to sliding a 90-char
// window over the de-spaced concatenated text.
func Scan(text string) (*Record, bool) {
	lines := candidateLines(text)
	for i := 0; i+2 < len(lines); i++ {
		if rec, err := Decode(lines[i], lines[i+1], lines[i+2]); err == nil {
			return rec, true
		}
	}

	flat := despace(text)
	for i := 0; i+3*LineLength <= len(flat); i++ {
		l1 := flat[i : i+LineLength]
		l2 := flat[i+LineLength : i+2*LineLength]
		l3 := flat[i+2*LineLength : i+3*LineLength]
		if rec, err := Decode(l1, l2, l3); err == nil {
			return rec, true
		}
	}

	return nil, false
}

func candidateLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(l), " ", ""))
		lines = append(lines, l)
	}
	return lines
}

func despace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToUpper(text) {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expandDate turns a YYMMDD field into DD/MM/YYYY. Birth years use the pivot
// (YY >= 30 reads as 19YY); expiry dates always read as 20YY.
func expandDate(yymmdd string, birth bool) string {
	yy := yymmdd[0:2]
	mm := yymmdd[2:4]
	dd := yymmdd[4:6]

	century := "20"
	if birth && int(yymmdd[0]-'0')*10+int(yymmdd[1]-'0') >= birthYearPivot {
		century = "19"
	}
	return dd + "/" + mm + "/" + century + yy
}

func sexCode(s string) string {
	if s == "<" {
		return ""
	}
	return s
}

// splitNames separates surname from given names on the first `<<` run.
func splitNames(line3 string) (string, []string) {
	trimmed := strings.TrimRight(line3, "<")
	surname, rest, found := strings.Cut(trimmed, "<<")
	surname = strings.ReplaceAll(surname, "<", " ")
	surname = strings.TrimSpace(surname)
	if !found || rest == "" {
		return surname, nil
	}

	var given []string
	for _, part := range strings.Split(rest, "<") {
		if part != "" {
			given = append(given, part)
		}
	}
	return surname, given
}
