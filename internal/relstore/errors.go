package relstore

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateHash = errors.New("content hash already registered")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)
