// Package chunker splits cleaned document text into overlapping chunks sized
// by token count. Ordinals are stable and monotonic per document.
package chunker

import "strings"

// DefaultTargetTokens is the default chunk length in tokens.
const DefaultTargetTokens = 300

// DefaultOverlap is the default fractional overlap between consecutive chunks.
const DefaultOverlap = 0.15

// Chunk is one bounded fragment of a document, the unit of retrieval.
type Chunk struct {
	Ordinal int    // position in document: 0, 1, 2...
	Text    string
}

// Chunker produces fixed-target-length chunks with fractional overlap so
// context spanning a boundary appears in both neighbors.
type Chunker struct {
	targetTokens int
	overlap      float64
}

// Option configures the chunker.
type Option func(*Chunker)

// WithTargetTokens sets the chunk length in tokens.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.targetTokens = n
		}
	}
}

// WithOverlap sets the fractional overlap, clamped to [0,1).
func WithOverlap(f float64) Option {
	return func(c *Chunker) {
		if f >= 0 && f < 1 {
			c.overlap = f
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		targetTokens: DefaultTargetTokens,
		overlap:      DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split chunks the text. Tokens are whitespace-delimited words; the stride
// between chunk starts is targetTokens*(1-overlap), floored at one token so
// the loop always advances.
func (c *Chunker) Split(text string) []Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	stride := int(float64(c.targetTokens) * (1 - c.overlap))
	if stride < 1 {
		stride = 1
	}

	var chunks []Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + c.targetTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    strings.Join(tokens[start:end], " "),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
