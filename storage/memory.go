package storage

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
)

// MemoryStore implements Store in a map. Values are copied in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ ClosableStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Put(_ context.Context, keyHash, ciphertext []byte) error {
	if err := validatePut(keyHash, ciphertext); err != nil {
		return err
	}
	k := hex.EncodeToString(keyHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[k]; !ok {
		m.data[k] = append([]byte(nil), ciphertext...)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[hex.EncodeToString(keyHash)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Has(_ context.Context, keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hex.EncodeToString(keyHash)]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	k := hex.EncodeToString(keyHash)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[k]; !ok {
		return ErrNotFound
	}
	delete(m.data, k)
	return nil
}

func (m *MemoryStore) Size(_ context.Context, keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[hex.EncodeToString(keyHash)]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(v)), nil
}

// List returns all stored content hashes in key order.
func (m *MemoryStore) List(_ context.Context) ([][]byte, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	result := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h, _ := hex.DecodeString(k)
		result = append(result, h)
	}
	return result, nil
}
