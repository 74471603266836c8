package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given key hash.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidKeyHash indicates the key hash is not exactly 64 bytes.
	ErrInvalidKeyHash = errors.New("storage: key hash must be 64 bytes")

	// ErrIOFailure indicates a backend read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrHashMismatch indicates content does not hash to the key it was fetched by.
	ErrHashMismatch = errors.New("storage: content hash mismatch")

	// ErrInvalidBackend indicates an unknown backend name.
	ErrInvalidBackend = errors.New("storage: unknown backend")
)
