package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a file has never been indexed.
	ErrNotFound = errors.New("file not found")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store closed")
)
