package rewrite

import "strings"

// Stopword sets for the two supported manual languages. Detection scores a
// text by counting hits in each set; the higher count wins. The sets are
// small on purpose: high-frequency function words separate en/es reliably
// on technical prose without any statistical model.
var (
	englishStopwords = makeSet(
		"the", "a", "an", "of", "to", "in", "is", "are", "and", "or", "for",
		"on", "with", "how", "what", "when", "where", "why", "do", "does",
		"can", "should", "this", "that", "from", "be", "it", "not", "at",
	)
	spanishStopwords = makeSet(
		"el", "la", "los", "las", "un", "una", "de", "del", "en", "es",
		"son", "y", "o", "para", "con", "como", "que", "cuando", "donde",
		"por", "se", "no", "al", "este", "esta", "hay", "si", "su",
	)
)

// DetectLanguage classifies text as "en" or "es" by stopword frequency.
// Ties and texts with no stopword hits default to "en".
func DetectLanguage(text string) string {
	var en, es int
	for _, token := range tokenize(text) {
		if englishStopwords[token] {
			en++
		}
		if spanishStopwords[token] {
			es++
		}
	}
	if es > en {
		return "es"
	}
	return "en"
}

// tokenize lowercases and splits on non-letter boundaries, keeping digits
// and the ampersand so designators like "P&ID" and "4-20mA" survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		case r == '&', r == 'á', r == 'é', r == 'í', r == 'ó', r == 'ú', r == 'ñ', r == 'ü':
			return false
		}
		return true
	})
}

func makeSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
