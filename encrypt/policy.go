package encrypt

import (
	"fmt"
	"runtime"

	"github.com/bitfsorg/selfencrypt-go/config"
	"github.com/bitfsorg/selfencrypt-go/datamap"
)

const (
	// DefaultChunkSize is the default size of every chunk except the last (1 MiB).
	DefaultChunkSize = 1 << 20

	// MaxChunkSize bounds ChunkSize and the decompressed size of any chunk (64 MiB).
	MaxChunkSize = 64 << 20

	// DefaultMaxInlineSize is the largest stream kept verbatim in the DataMap.
	DefaultMaxInlineSize = 3 * 1024

	// DefaultNeighbors is the number of preceding chunks whose pre-hashes feed
	// a chunk's key material.
	DefaultNeighbors = 2
)

// Policy fixes how a stream is chunked, keyed and compressed.
type Policy struct {
	// ChunkSize is the size of every chunk except the last.
	ChunkSize uint32

	// MaxInlineSize: streams of at most this many bytes are stored inline.
	MaxInlineSize uint32

	// Neighbors is how many preceding chunks contribute key material. An
	// edit to chunk N invalidates chunks N..N+Neighbors.
	Neighbors int

	// Workers bounds the goroutines hashing and sealing chunks in parallel.
	Workers int

	Compression Compression
}

// DefaultPolicy returns the policy used when none is given.
func DefaultPolicy() Policy {
	return Policy{
		ChunkSize:     DefaultChunkSize,
		MaxInlineSize: DefaultMaxInlineSize,
		Neighbors:     DefaultNeighbors,
		Workers:       runtime.NumCPU(),
		Compression:   CompressZstd,
	}
}

// Validate checks that every policy value is usable.
func (p Policy) Validate() error {
	if p.ChunkSize == 0 || p.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d not in [1, %d]", ErrInvalidPolicy, p.ChunkSize, MaxChunkSize)
	}
	if p.Neighbors < 0 || p.Neighbors > datamap.MaxNeighbors {
		return fmt.Errorf("%w: neighbors %d not in [0, %d]", ErrInvalidPolicy, p.Neighbors, datamap.MaxNeighbors)
	}
	if p.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidPolicy, p.Workers)
	}
	if p.Compression > CompressZstd {
		return fmt.Errorf("%w: %w: %d", ErrInvalidPolicy, ErrUnsupportedCompression, p.Compression)
	}
	return nil
}

// PolicyFromConfig builds a Policy from configuration values. A zero
// Workers value means one worker per CPU.
func PolicyFromConfig(cfg config.Config) (Policy, error) {
	compression, err := ParseCompression(cfg.Compression)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		ChunkSize:     cfg.ChunkSize,
		MaxInlineSize: cfg.MaxInlineSize,
		Neighbors:     cfg.Neighbors,
		Workers:       cfg.Workers,
		Compression:   compression,
	}
	if p.Workers == 0 {
		p.Workers = runtime.NumCPU()
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
