package rewrite

import (
	"strings"
	"testing"
)

// TestDetectLanguage tests stopword-based classification.
func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"how do I reset the alarm on the panel", "en"},
		{"what is the startup sequence for the pump", "en"},
		{"como reinicio la alarma en el panel", "es"},
		{"cual es la secuencia de arranque de la bomba", "es"},
		{"", "en"}, // no signal defaults to en
		{"PLC RTU HMI", "en"},
	}

	for _, tt := range tests {
		if got := DetectLanguage(tt.text); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

// TestRewrite_AcronymExpansion tests that acronyms append their expansions.
func TestRewrite_AcronymExpansion(t *testing.T) {
	r := NewRewriter()
	result := r.Rewrite("how to reset the PLC after a fault")

	if !strings.HasPrefix(result.Rewritten, "how to reset the PLC after a fault") {
		t.Errorf("Original query not preserved as prefix: %q", result.Rewritten)
	}
	if !strings.Contains(result.Rewritten, "programmable logic controller") {
		t.Errorf("PLC not expanded: %q", result.Rewritten)
	}
	if result.Degraded {
		t.Error("Expected non-degraded result")
	}
}

// TestRewrite_SynonymsPerLanguage tests language-specific synonym tables.
func TestRewrite_SynonymsPerLanguage(t *testing.T) {
	r := NewRewriter()

	en := r.Rewrite("what does this alarm mean on the HMI")
	if en.Language != "en" {
		t.Fatalf("Expected en, got %q", en.Language)
	}
	if !strings.Contains(en.Rewritten, "alert") {
		t.Errorf("English synonym missing: %q", en.Rewritten)
	}

	es := r.Rewrite("que significa la alarma en el panel")
	if es.Language != "es" {
		t.Fatalf("Expected es, got %q", es.Language)
	}
	if !strings.Contains(es.Rewritten, "alerta") {
		t.Errorf("Spanish synonym missing: %q", es.Rewritten)
	}
	if strings.Contains(es.Rewritten, "alert ") {
		t.Errorf("English synonym leaked into Spanish query: %q", es.Rewritten)
	}
}

// TestRewrite_Deterministic tests that rewriting is reproducible.
func TestRewrite_Deterministic(t *testing.T) {
	r := NewRewriter()
	query := "SCADA alarm flood during VFD restart"

	first := r.Rewrite(query)
	for i := 0; i < 10; i++ {
		if got := r.Rewrite(query); got != first {
			t.Fatalf("Rewrite not deterministic: %+v vs %+v", got, first)
		}
	}
}

// TestRewrite_Empty tests the degraded path for empty input.
func TestRewrite_Empty(t *testing.T) {
	r := NewRewriter()
	result := r.Rewrite("   ")

	if !result.Degraded {
		t.Error("Expected degraded result for empty query")
	}
	if result.Language != "en" {
		t.Errorf("Expected default language en, got %q", result.Language)
	}
}

// TestRewrite_NoExpansions tests that a query with nothing to expand passes
// through unchanged.
func TestRewrite_NoExpansions(t *testing.T) {
	r := NewRewriter()
	query := "torque specification clamp bolts"
	result := r.Rewrite(query)

	if result.Rewritten != query {
		t.Errorf("Expected unchanged query, got %q", result.Rewritten)
	}
	if result.Degraded {
		t.Error("Unexpanded query is not degraded")
	}
}

// TestRewrite_DuplicateExpansions tests that a term appearing twice expands
// once.
func TestRewrite_DuplicateExpansions(t *testing.T) {
	r := NewRewriter()
	result := r.Rewrite("PLC fault plc reset")

	if strings.Count(result.Rewritten, "programmable logic controller") != 1 {
		t.Errorf("Expansion duplicated: %q", result.Rewritten)
	}
}
