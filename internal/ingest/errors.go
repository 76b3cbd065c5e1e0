package ingest

import "errors"

var (
	// ErrDuplicateDocument means the file's content hash is already
	// registered; nothing was written.
	ErrDuplicateDocument = errors.New("document content already ingested")

	// ErrExtractionFailure means the source file produced no usable text.
	ErrExtractionFailure = errors.New("text extraction failed")

	// ErrEmbeddingFailure means the embedding service rejected the chunks
	// after the retry budget was spent.
	ErrEmbeddingFailure = errors.New("embedding generation failed")
)
