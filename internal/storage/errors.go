package storage

import "errors"

var (
	ErrStoreUnreachable  = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrChunkNotFound     = errors.New("chunk not found")
)
