package storage

import "time"

// ChunkPoint is one chunk as stored in Qdrant: a dense vector under the
// "content" name plus the payload fields the retriever filters and sorts on.
type ChunkPoint struct {
	ID         string // UUID
	DocumentID string // owning document
	Ordinal    int    // position in document (0, 1, 2...)
	Text       string
	SourcePath string
	Language   string
	IngestedAt time.Time
	Embedding  []float32
}

// ScoredChunk pairs a chunk with a similarity score from a search leg.
type ScoredChunk struct {
	Chunk *ChunkPoint
	Score float64
}
