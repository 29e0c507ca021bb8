// Package extract converts raw OCR output from identity documents into
// structured fields. Parsing is pure: no I/O, no clock, no randomness.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/domain/mrz"
)

// Recognizer is the OCR collaborator: it turns a document image into
// line-oriented text plus the engine's confidence and authenticity signals.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Document, error)
}

// Document is the OCR collaborator's output for one side of a document.
type Document struct {
	// Text is the recognized text, line-oriented where the engine preserves layout.
	Text string
	// Confidence is the engine's overall recognition confidence in [0,1].
	Confidence float64
	// Authenticity is the engine's document-authenticity score, when provided.
	Authenticity *float64
}

// Candidate patterns per field, in priority order: the first pattern that
// matches wins and no later pattern overrides it. Labeled captures come
// first, bare-shape fallbacks last, to tolerate OCR noise.
var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:full name|họ và tên)[:\s]+([A-ZÀ-Ỹ][A-ZÀ-Ỹ\s]{2,})`),
		regexp.MustCompile(`(?i)(?:name|tên)[:\s]+([A-ZÀ-Ỹ][A-ZÀ-Ỹ\s]{2,})`),
	}
	dobPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:date of birth|ngày sinh|dob)[:\s]*(\d{1,2}[-./]\d{1,2}[-./]\d{4})`),
		regexp.MustCompile(`(?i)(?:birth|sinh)[:\s]*(\d{1,2}[-./]\d{1,2}[-./]\d{4})`),
	}
	idNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:id number|số|no)[.:\s]*(\d{12}|\d{9})`),
		regexp.MustCompile(`\b(\d{12})\b`),
		regexp.MustCompile(`\b(\d{9})\b`),
	}
	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:place of residence|nơi thường trú|address|địa chỉ)[:\s]+([A-ZÀ-Ỹa-zà-ỹ0-9][A-ZÀ-Ỹa-zà-ỹ0-9\s,./-]+)`),
	}
	authorityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:issuing authority|issued by|nơi cấp)[:\s]+([A-ZÀ-Ỹa-zà-ỹ][A-ZÀ-Ỹa-zà-ỹ\s,.]+)`),
	}
	expiryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:date of expiry|valid until|có giá trị đến|expires?)[:\s]*(\d{1,2}[-./]\d{1,2}[-./]\d{4})`),
	}
)

var dateSeparators = strings.NewReplacer("-", "/", ".", "/")

// Parse extracts structured identity fields from the front and back of a
// document. Fields with no matching pattern and no MRZ value stay nil.
func Parse(front, back Document) *model.ExtractedFields {
	text := front.Text + "\n" + back.Text

	fields := &model.ExtractedFields{
		FullName:          firstMatch(namePatterns, text),
		DateOfBirth:       normalizeDatePtr(firstMatch(dobPatterns, text)),
		DocumentNumber:    firstMatch(idNumberPatterns, text),
		Address:           firstMatch(addressPatterns, text),
		IssuingAuthority:  firstMatch(authorityPatterns, text),
		ExpiryDate:        normalizeDatePtr(firstMatch(expiryPatterns, text)),
		Confidence:        overallConfidence(front.Confidence, back.Confidence),
		FrontAuthenticity: front.Authenticity,
		BackAuthenticity:  back.Authenticity,
	}

	if rec, ok := mrz.Scan(text); ok {
		fields.MRZ = rec
		fillFromMRZ(fields, rec)
	}

	return fields
}

// NormalizeDate rewrites `-` and `.` date separators to `/`.
func NormalizeDate(date string) string {
	return dateSeparators.Replace(date)
}

func normalizeDatePtr(date *string) *string {
	if date == nil {
		return nil
	}
	normalized := NormalizeDate(*date)
	return &normalized
}

func firstMatch(patterns []*regexp.Regexp, text string) *string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			v := strings.TrimSpace(m[1])
			if v != "" {
				return &v
			}
		}
	}
	return nil
}

// fillFromMRZ backfills fields the visual zone did not yield. Pattern matches
// keep priority over the machine-readable zone.
func fillFromMRZ(fields *model.ExtractedFields, rec *mrz.Record) {
	if fields.DocumentNumber == nil && rec.DocumentNumber != "" {
		fields.DocumentNumber = ptr(rec.DocumentNumber)
	}
	if fields.DateOfBirth == nil && rec.BirthDate != "" {
		fields.DateOfBirth = ptr(rec.BirthDate)
	}
	if fields.ExpiryDate == nil && rec.ExpiryDate != "" {
		fields.ExpiryDate = ptr(rec.ExpiryDate)
	}
	if fields.FullName == nil && rec.Surname != "" {
		full := rec.Surname
		if len(rec.GivenNames) > 0 {
			full += " " + strings.Join(rec.GivenNames, " ")
		}
		fields.FullName = ptr(full)
	}
}

// overallConfidence averages the per-side confidences, skipping absent sides.
func overallConfidence(front, back float64) float64 {
	switch {
	case front > 0 && back > 0:
		return (front + back) / 2
	case front > 0:
		return front
	case back > 0:
		return back
	default:
		return 0
	}
}

func ptr(s string) *string { return &s }
