// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
)

// MaxChunkSize is the largest accepted chunk size (64 MiB).
const MaxChunkSize = 64 << 20

// MaxNeighbors is the largest accepted neighbor count.
const MaxNeighbors = 16

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"file":   true,
	"bolt":   true,
	"badger": true,
	"memory": true,
}

var validCompressions = map[string]bool{
	"none": true,
	"gzip": true,
	"zstd": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" && cfg.Backend != "memory" {
		return ErrEmptyDataDir
	}

	if !validBackends[cfg.Backend] {
		return ErrInvalidBackend
	}

	if cfg.ChunkSize == 0 || cfg.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidChunkSize, cfg.ChunkSize, MaxChunkSize)
	}

	if cfg.Neighbors < 0 || cfg.Neighbors > MaxNeighbors {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidNeighbors, cfg.Neighbors, MaxNeighbors)
	}

	if cfg.Workers < 0 {
		return ErrInvalidWorkers
	}

	if !validCompressions[strings.ToLower(cfg.Compression)] {
		return ErrInvalidCompression
	}

	if cfg.CacheSize < 0 {
		return ErrInvalidCacheSize
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	return nil
}
