package retrieval

import (
	"math"
	"strings"
)

// ochiai computes the Ochiai coefficient between two token sets:
// |A ∩ B| / sqrt(|A| * |B|). Range [0,1], 1 for identical sets. It scores
// the lexical leg client-side, since the full-text filter only selects
// matching points without ranking them.
func ochiai(queryTokens map[string]bool, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := tokenSet(text)
	if len(textTokens) == 0 {
		return 0
	}

	var intersection int
	for token := range queryTokens {
		if textTokens[token] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	return float64(intersection) / math.Sqrt(float64(len(queryTokens))*float64(len(textTokens)))
}

// tokenSet lowercases and splits text into a set of alphanumeric tokens.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
