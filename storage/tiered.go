package storage

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// TieredStore reads from a primary store first and then from fallback
// stores in priority order (e.g. a mounted backup or a shared directory).
// Content found in a fallback is verified against its hash and copied into
// the primary. Writes, deletes and listing go to the primary only.
type TieredStore struct {
	Primary   Store
	Fallbacks []Store
}

var _ ClosableStore = (*TieredStore)(nil)

// NewTieredStore creates a TieredStore over primary and fallbacks.
func NewTieredStore(primary Store, fallbacks ...Store) *TieredStore {
	return &TieredStore{Primary: primary, Fallbacks: fallbacks}
}

// Close closes every tier that holds resources.
func (t *TieredStore) Close() error {
	var errs []error
	for _, s := range append([]Store{t.Primary}, t.Fallbacks...) {
		if closer, ok := s.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

func (t *TieredStore) Put(ctx context.Context, keyHash, ciphertext []byte) error {
	return t.Primary.Put(ctx, keyHash, ciphertext)
}

// Get retrieves ciphertext, trying sources in order:
//  1. The primary store
//  2. Each fallback store
//
// Only ErrNotFound moves on to the next source; other primary errors are
// real failures. Fallback content that does not hash to keyHash is skipped.
func (t *TieredStore) Get(ctx context.Context, keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}

	data, err := t.Primary.Get(ctx, keyHash)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("tiered: primary store: %w", err)
	}

	mismatch := false
	for _, fb := range t.Fallbacks {
		data, err := fb.Get(ctx, keyHash)
		if err != nil {
			continue
		}
		sum := sha512.Sum512(data)
		if !bytes.Equal(sum[:], keyHash) {
			mismatch = true
			continue
		}
		// Copy into the primary for future access.
		_ = t.Primary.Put(ctx, keyHash, data)
		return data, nil
	}

	if mismatch {
		return nil, fmt.Errorf("tiered: %w: %w: key_hash %s", ErrNotFound, ErrHashMismatch, hex.EncodeToString(keyHash))
	}
	return nil, fmt.Errorf("tiered: %w: key_hash %s", ErrNotFound, hex.EncodeToString(keyHash))
}

func (t *TieredStore) Has(ctx context.Context, keyHash []byte) (bool, error) {
	for _, s := range append([]Store{t.Primary}, t.Fallbacks...) {
		ok, err := s.Has(ctx, keyHash)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (t *TieredStore) Delete(ctx context.Context, keyHash []byte) error {
	return t.Primary.Delete(ctx, keyHash)
}

func (t *TieredStore) Size(ctx context.Context, keyHash []byte) (int64, error) {
	for _, s := range append([]Store{t.Primary}, t.Fallbacks...) {
		n, err := s.Size(ctx, keyHash)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	return 0, ErrNotFound
}

func (t *TieredStore) List(ctx context.Context) ([][]byte, error) {
	return t.Primary.List(ctx)
}
