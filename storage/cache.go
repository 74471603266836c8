package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/allegro/bigcache/v3"
)

// cacheShards must be a power of two. Few shards keep each shard large
// enough to hold a whole chunk.
const cacheShards = 16

// cacheLifeWindow bounds how long an entry lives. Content-addressed values
// never go stale, so this only ages out cold chunks.
const cacheLifeWindow = time.Hour

// CachedStore is a read-through in-memory cache of ciphertext in front of
// another Store. Cache failures are never surfaced: the backing store is the
// source of truth.
type CachedStore struct {
	backend Store
	cache   *bigcache.BigCache
}

var _ ClosableStore = (*CachedStore)(nil)

// NewCachedStore wraps backend with a cache of at most sizeMB megabytes.
func NewCachedStore(backend Store, sizeMB int) (*CachedStore, error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	if sizeMB <= 0 {
		return nil, fmt.Errorf("storage: cache size must be positive, got %d", sizeMB)
	}
	cfg := bigcache.DefaultConfig(cacheLifeWindow)
	cfg.Shards = cacheShards
	cfg.HardMaxCacheSize = sizeMB
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64 << 10
	cfg.CleanWindow = 5 * time.Minute
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create cache: %w", err)
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

// Close releases the cache and closes the backend if it holds resources.
func (c *CachedStore) Close() error {
	err := c.cache.Close()
	if closer, ok := c.backend.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// Stats returns cache hit and miss counters.
func (c *CachedStore) Stats() bigcache.Stats {
	return c.cache.Stats()
}

func (c *CachedStore) Put(ctx context.Context, keyHash, ciphertext []byte) error {
	if err := c.backend.Put(ctx, keyHash, ciphertext); err != nil {
		return err
	}
	_ = c.cache.Set(string(keyHash), ciphertext)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	if v, err := c.cache.Get(string(keyHash)); err == nil {
		return v, nil
	}
	v, err := c.backend.Get(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(string(keyHash), v)
	return v, nil
}

func (c *CachedStore) Has(ctx context.Context, keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}
	if _, err := c.cache.Get(string(keyHash)); err == nil {
		return true, nil
	}
	return c.backend.Has(ctx, keyHash)
}

func (c *CachedStore) Delete(ctx context.Context, keyHash []byte) error {
	if err := c.cache.Delete(string(keyHash)); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return c.backend.Delete(ctx, keyHash)
}

func (c *CachedStore) Size(ctx context.Context, keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	if v, err := c.cache.Get(string(keyHash)); err == nil {
		return int64(len(v)), nil
	}
	return c.backend.Size(ctx, keyHash)
}

func (c *CachedStore) List(ctx context.Context) ([][]byte, error) {
	return c.backend.List(ctx)
}
