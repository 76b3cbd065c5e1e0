// Package rewrite normalizes and expands user queries before retrieval.
// The rewriter is deterministic: the same input always produces the same
// output, so traces are reproducible and evaluation runs are comparable.
package rewrite

import "strings"

// acronyms maps plant-automation abbreviations to their expansions. The
// expansion is appended, never substituted, so exact-match lexical scoring
// on the original term still works.
var acronyms = map[string]string{
	"scada": "supervisory control and data acquisition",
	"plc":   "programmable logic controller",
	"rtu":   "remote terminal unit",
	"hmi":   "human machine interface",
	"vfd":   "variable frequency drive",
	"dcs":   "distributed control system",
	"mcc":   "motor control center",
	"opc":   "open platform communications",
	"pid":   "proportional integral derivative",
	"p&id":  "piping and instrumentation diagram",
	"io":    "input output",
	"ups":   "uninterruptible power supply",
	"esd":   "emergency shutdown",
}

// synonyms maps common query terms to domain equivalents, per language.
var synonyms = map[string]map[string]string{
	"en": {
		"alarm":    "alert",
		"error":    "fault",
		"restart":  "reboot",
		"setup":    "configuration",
		"wiring":   "cabling",
		"sensor":   "transmitter",
		"breaker":  "circuit breaker",
		"manual":   "handbook",
		"shutdown": "stop sequence",
	},
	"es": {
		"alarma":   "alerta",
		"error":    "falla",
		"reinicio": "reiniciar",
		"sensor":   "transmisor",
		"manual":   "guia",
		"cableado": "conexionado",
	},
}

// Result is the rewriter output. Rewritten always begins with the original
// query text; expansions follow it.
type Result struct {
	Rewritten string
	Language  string
	Degraded  bool
}

// Rewriter expands queries with acronym and synonym terms. Zero value is
// usable.
type Rewriter struct{}

// NewRewriter returns a Rewriter.
func NewRewriter() *Rewriter {
	return &Rewriter{}
}

// Rewrite detects the query language and appends expansion terms. It never
// fails: an empty or unexpandable query comes back as-is with Degraded set
// only in the empty case.
func (r *Rewriter) Rewrite(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Rewritten: raw, Language: "en", Degraded: true}
	}

	lang := DetectLanguage(trimmed)

	var expansions []string
	seen := make(map[string]bool)
	for _, token := range tokenize(trimmed) {
		if exp, ok := acronyms[token]; ok && !seen[exp] {
			expansions = append(expansions, exp)
			seen[exp] = true
		}
		if exp, ok := synonyms[lang][token]; ok && !seen[exp] {
			expansions = append(expansions, exp)
			seen[exp] = true
		}
	}

	rewritten := trimmed
	if len(expansions) > 0 {
		rewritten = trimmed + " " + strings.Join(expansions, " ")
	}

	return Result{Rewritten: rewritten, Language: lang}
}
