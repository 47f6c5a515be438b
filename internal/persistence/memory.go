package persistence

import (
	"context"
	"sync"
)

// MemoryStore is a DurableStore that keeps blobs in memory
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Save stores a copy of blob
func (m *MemoryStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := make([]byte, len(blob))
	copy(c, blob)

	m.mu.Lock()
	m.blobs[key] = c
	m.mu.Unlock()
	return nil
}

// Load returns a copy of the stored blob
func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	c := make([]byte, len(blob))
	copy(c, blob)
	return c, true, nil
}
