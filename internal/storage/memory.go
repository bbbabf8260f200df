package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend. It is always enabled and is the
// guaranteed fallback when no other medium is usable.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	maxItems int
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithMaxItems caps the number of distinct keys. Writes of new keys beyond
// the cap fail with ErrQuotaExceeded; nothing is evicted.
func WithMaxItems(n int) MemoryOption {
	return func(m *Memory) {
		m.maxItems = n
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) GetItem(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent mutation
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) SetItem(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && m.maxItems > 0 && len(m.entries) >= m.maxItems {
		return ErrQuotaExceeded
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.entries[key] = cp
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	return nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Key(_ context.Context, index int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.entries) {
		return "", ErrNotFound
	}
	return m.sortedKeys()[index], nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedKeys(), nil
}

// sortedKeys must be called with mu held.
func (m *Memory) sortedKeys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Type() Type { return TypeMemory }

func (m *Memory) IsEnabled(_ context.Context) bool { return true }

// Close drops all entries. The backend stays usable afterwards.
func (m *Memory) Close() error {
	return m.Clear(context.Background())
}
