package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var bucketChunks = []byte("chunks")

// BoltStore implements Store in a single bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

var _ ClosableStore = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if dbPath == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrIOFailure, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create bucket: %w", ErrIOFailure, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Put stores ciphertext indexed by its content hash.
func (s *BoltStore) Put(ctx context.Context, keyHash, ciphertext []byte) error {
	if err := validatePut(keyHash, ciphertext); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b.Get(keyHash) != nil {
			return nil
		}
		return b.Put(keyHash, ciphertext)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Get retrieves ciphertext by content hash.
func (s *BoltStore) Get(ctx context.Context, keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChunks).Get(keyHash)
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return out, nil
}

// Has checks if content exists for the given hash.
func (s *BoltStore) Has(_ context.Context, keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketChunks).Get(keyHash) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return found, nil
}

// Delete removes content by hash.
func (s *BoltStore) Delete(_ context.Context, keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b.Get(keyHash) == nil {
			return ErrNotFound
		}
		return b.Delete(keyHash)
	})
	if err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Size returns the size in bytes of stored content for the hash.
func (s *BoltStore) Size(_ context.Context, keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	var size int64 = -1
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketChunks).Get(keyHash); v != nil {
			size = int64(len(v))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if size < 0 {
		return 0, ErrNotFound
	}
	return size, nil
}

// List returns all stored content hashes in key order.
func (s *BoltStore) List(ctx context.Context) ([][]byte, error) {
	var result [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, _ []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result = append(result, append([]byte(nil), k...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return result, nil
}
