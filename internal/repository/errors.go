package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("document not found")

	// ErrVersionConflict is returned when a guarded write carries a stale
	// token version (a concurrent refresh already rotated the pair)
	ErrVersionConflict = errors.New("token version conflict")

	// ErrStateConsumed is returned when an OAuth state value has already
	// been consumed or never existed
	ErrStateConsumed = errors.New("oauth state invalid or already consumed")
)
