// Package fallback persists collection snapshots locally so the dashboard can
// start while the remote store is unreachable.
package fallback

import (
	"context"
	"maps"
	"sync"
)

// Store is a durable key-value store for serialized snapshots. Implementations
// must make each Save atomic: a concurrent or interrupted Save never leaves a torn
// value behind.
type Store interface {
	// Load returns the stored bytes for key; found is false when nothing is stored.
	Load(ctx context.Context, key string) (data []byte, found bool, err error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store, used in tests and when persistence is
// disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Keys returns a copy of the stored keys.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range maps.Keys(m.data) {
		keys = append(keys, k)
	}
	return keys
}
