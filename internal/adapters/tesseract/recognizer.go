// Package tesseract implements the OCR collaborator by shelling out to the
// tesseract binary.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/domain/extract"
)

// runFunc executes the OCR command and returns its stdout. Injectable so
// tests can run without a tesseract install.
type runFunc func(ctx context.Context, cmd string, args []string, stdin []byte) ([]byte, error)

// Recognizer turns a document image into line-oriented text with a mean word
// confidence, using tesseract's TSV output.
type Recognizer struct {
	cmd       string
	languages string
	timeout   time.Duration
	logger    *slog.Logger
	run       runFunc
}

// Options configures a Recognizer.
type Options struct {
	Config config.MLConfig
	Logger *slog.Logger
}

// NewRecognizer creates a tesseract-backed Recognizer.
func NewRecognizer(opts Options) (*Recognizer, error) {
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recognizer{
		cmd:       cfg.OCRCommand,
		languages: cfg.OCRLanguages,
		timeout:   cfg.OCRTimeout,
		logger:    logger.With("component", "tesseract"),
		run:       runCommand,
	}, nil
}

// Recognize runs tesseract over the image and assembles the recognized text
// plus the mean per-word confidence. Tesseract reports no authenticity
// signal, so Document.Authenticity stays nil.
func (r *Recognizer) Recognize(ctx context.Context, image []byte) (extract.Document, error) {
	if len(image) == 0 {
		return extract.Document{}, errors.New("empty image")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"stdin", "stdout", "-l", r.languages, "tsv"}
	out, err := r.run(ctx, r.cmd, args, image)
	if err != nil {
		return extract.Document{}, fmt.Errorf("run %s: %w", r.cmd, err)
	}

	doc := parseTSV(out)
	r.logger.DebugContext(ctx, "ocr completed",
		"bytes_in", len(image),
		"confidence", doc.Confidence,
	)
	return doc, nil
}

// parseTSV reconstructs line-oriented text from tesseract TSV output. Columns
// (header included): level .. line_num .. conf, text. Word rows have level 5;
// conf -1 marks non-word rows.
func parseTSV(out []byte) extract.Document {
	var (
		lines     []string
		current   []string
		lastLine  string
		confSum   float64
		confCount int
	)

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = current[:0]
		}
	}

	for i, row := range strings.Split(string(out), "\n") {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != 5 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		// Lines are unique per block/paragraph/line triple.
		lineKey := cols[2] + ":" + cols[3] + ":" + cols[4]
		if lineKey != lastLine {
			flush()
			lastLine = lineKey
		}
		current = append(current, word)
		confSum += conf
		confCount++
	}
	flush()

	doc := extract.Document{Text: strings.Join(lines, "\n")}
	if confCount > 0 {
		doc.Confidence = confSum / float64(confCount) / 100
	}
	return doc
}

func runCommand(ctx context.Context, cmd string, args []string, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdin = bytes.NewReader(stdin)
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
