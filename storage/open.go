package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bitfsorg/selfencrypt-go/config"
)

// Backend directory and file names inside the data directory.
const (
	fileStoreDir   = "chunks"
	boltStoreFile  = "chunks.db"
	badgerStoreDir = "chunks.badger"
)

// Open builds the chunk store described by cfg: the configured backend,
// wrapped in a TieredStore when fallback directories are set and in a
// CachedStore when CacheSize is positive.
func Open(cfg config.Config) (ClosableStore, error) {
	var (
		primary ClosableStore
		err     error
	)
	switch cfg.Backend {
	case "file":
		primary, err = NewFileStore(dataPath(cfg, fileStoreDir))
	case "bolt":
		primary, err = OpenBoltStore(dataPath(cfg, boltStoreFile))
	case "badger":
		primary, err = OpenBadgerStore(dataPath(cfg, badgerStoreDir))
	case "memory":
		primary = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	store := primary
	if len(cfg.Fallbacks) > 0 {
		fallbacks := make([]Store, 0, len(cfg.Fallbacks))
		for _, dir := range cfg.Fallbacks {
			fs, err := NewFileStore(dir)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("storage: fallback %s: %w", dir, err), primary.Close())
			}
			fallbacks = append(fallbacks, fs)
		}
		store = NewTieredStore(primary, fallbacks...)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedStore(store, cfg.CacheSize)
		if err != nil {
			return nil, errors.Join(err, store.Close())
		}
		store = cached
	}
	return store, nil
}

func dataPath(cfg config.Config, name string) string {
	if cfg.DataDir == "" {
		return ""
	}
	return filepath.Join(cfg.DataDir, name)
}
