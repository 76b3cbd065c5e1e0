// Package extract turns source manual files into cleaned plain text ready for
// chunking. PDF-to-text conversion itself is an upstream concern; this package
// consumes the extracted text and normalizes it.
package extract

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// ErrEmptyDocument is returned when cleaning yields no usable text.
var ErrEmptyDocument = errors.New("extraction produced empty text")

// Extractor converts a source file into cleaned text. Implementations may
// shell out to external converters; the bundled one reads pre-extracted text.
type Extractor interface {
	Extract(path string) (string, error)
}

var (
	pageNumberRe = regexp.MustCompile(`(?m)^\s*(?:Page\s+)?\d{1,4}\s*$`)
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
)

// TextExtractor reads already-extracted manual text (.txt output of the PDF
// conversion step) and applies the cleaning pass.
type TextExtractor struct{}

// NewTextExtractor returns the plain-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract reads the file and cleans it. Returns ErrEmptyDocument when nothing
// survives cleaning, which callers must treat as an extraction failure.
func (e *TextExtractor) Extract(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	cleaned := Clean(b.String())
	if cleaned == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}
	return cleaned, nil
}

// Clean strips extraction artifacts: control characters, bare page numbers,
// runs of whitespace, and repeated blank lines.
func Clean(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	text = pageNumberRe.ReplaceAllString(text, "")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
