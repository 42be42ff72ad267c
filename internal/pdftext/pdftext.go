// Package pdftext extracts plain text from result sheets and locates the student name in it.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned for zero-length input.
var ErrEmptyDocument = errors.New("empty pdf document")

var (
	namePattern = regexp.MustCompile(`(?i)Name of the Student:\s*([A-Z\s]+)`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// Extractor turns a PDF into plain text. Extraction is best-effort.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractText concatenates the text of every page without separators.
// Panics raised by the parser on malformed input are converted to errors.
func (e *Extractor) ExtractText(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

// ExtractStudentName finds "Name of the Student: <NAME>" and returns the name with
// whitespace runs collapsed. The bool is false when no non-empty name is present.
func ExtractStudentName(text string) (string, bool) {
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := NormalizeName(m[1])
	if name == "" {
		return "", false
	}
	return name, true
}

// NormalizeName trims and collapses internal whitespace to single spaces.
func NormalizeName(name string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}
