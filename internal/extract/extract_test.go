package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestClean_PageNumbers tests that bare page numbers are stripped.
func TestClean_PageNumbers(t *testing.T) {
	input := "Section 4.2 Alarm handling\n42\nPage 43\nAcknowledge the alarm."
	out := Clean(input)

	if strings.Contains(out, "\n42\n") || strings.HasSuffix(out, "42") && !strings.Contains(out, "4.2") {
		t.Errorf("Bare page number survived: %q", out)
	}
	if strings.Contains(out, "Page 43") {
		t.Errorf("Page-prefixed number survived: %q", out)
	}
	if !strings.Contains(out, "Section 4.2 Alarm handling") {
		t.Errorf("Content with inline numbers was damaged: %q", out)
	}
	if !strings.Contains(out, "Acknowledge the alarm.") {
		t.Errorf("Body text lost: %q", out)
	}
}

// TestClean_Whitespace tests control char and whitespace normalization.
func TestClean_Whitespace(t *testing.T) {
	input := "open\x00 the    breaker\n\n\n\n\ncabinet"
	out := Clean(input)

	if strings.Contains(out, "\x00") {
		t.Error("Control character survived")
	}
	if strings.Contains(out, "    ") {
		t.Error("Multi-space run survived")
	}
	if strings.Contains(out, "\n\n\n") {
		t.Error("Blank line run survived")
	}
}

// TestTextExtractor_RoundTrip tests extracting a real file.
func TestTextExtractor_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.txt")
	content := "Startup procedure\n\nVerify the lockout is cleared before energizing.\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewTextExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(text, "Verify the lockout") {
		t.Errorf("Extracted text missing content: %q", text)
	}
}

// TestTextExtractor_Empty tests that an empty file is an ErrEmptyDocument.
func TestTextExtractor_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n\n  "), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewTextExtractor()
	_, err := e.Extract(path)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
}

// TestTextExtractor_MissingFile tests the error path for absent files.
func TestTextExtractor_MissingFile(t *testing.T) {
	e := NewTextExtractor()
	if _, err := e.Extract(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}
