// Package storage provides content-addressed stores for encrypted chunks.
//
// Every backend keys values by the SHA-512 hash of the ciphertext it holds,
// so a value never changes once written and Put of an existing key is a
// no-op. All Store implementations satisfy encrypt.ChunkStore.
package storage

import (
	"context"
	"fmt"
	"io"
)

// KeyHashSize is the required length of a key hash (SHA-512 output = 64 bytes).
const KeyHashSize = 64

// Store provides content-addressed storage for encrypted chunk data.
// Keys are SHA-512(ciphertext) content hashes (64 bytes), values are opaque ciphertext.
type Store interface {
	// Put stores ciphertext indexed by its content hash.
	Put(ctx context.Context, keyHash, ciphertext []byte) error

	// Get retrieves ciphertext by content hash.
	Get(ctx context.Context, keyHash []byte) ([]byte, error)

	// Has checks if content exists for the given hash.
	Has(ctx context.Context, keyHash []byte) (bool, error)

	// Delete removes content by hash.
	Delete(ctx context.Context, keyHash []byte) error

	// Size returns the size in bytes of stored content for the hash.
	Size(ctx context.Context, keyHash []byte) (int64, error)

	// List returns all stored content hashes (for backup/export).
	List(ctx context.Context) ([][]byte, error)
}

// ClosableStore is a Store holding resources that must be released.
type ClosableStore interface {
	Store
	io.Closer
}

// validateKeyHash checks that the key hash is exactly KeyHashSize bytes.
func validateKeyHash(keyHash []byte) error {
	if len(keyHash) != KeyHashSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidKeyHash, len(keyHash))
	}
	return nil
}

// validatePut checks the arguments of a Put.
func validatePut(keyHash, ciphertext []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	if len(ciphertext) == 0 {
		return ErrEmptyContent
	}
	return nil
}
