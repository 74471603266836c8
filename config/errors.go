// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidBackend indicates the storage backend name is not recognized.
	ErrInvalidBackend = errors.New("config: invalid backend (must be \"file\", \"bolt\", \"badger\", or \"memory\")")

	// ErrInvalidChunkSize indicates the chunk size is zero or too large.
	ErrInvalidChunkSize = errors.New("config: invalid chunk size")

	// ErrInvalidNeighbors indicates the neighbor count is out of range.
	ErrInvalidNeighbors = errors.New("config: invalid neighbor count")

	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("config: invalid worker count")

	// ErrInvalidCompression indicates the compression name is not recognized.
	ErrInvalidCompression = errors.New("config: invalid compression (must be \"none\", \"gzip\", or \"zstd\")")

	// ErrInvalidCacheSize indicates a negative cache size.
	ErrInvalidCacheSize = errors.New("config: invalid cache size")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
