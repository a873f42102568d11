package snapshot

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, session, name string, data []byte) error {
	if err := validateKey(session, name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.data[session]
	if !ok {
		byName = make(map[string][]byte)
		m.data[session] = byName
	}
	byName[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, session, name string) ([]byte, error) {
	if err := validateKey(session, name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[session][name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context, session string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data[session]))
	for name := range m.data[session] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Delete(_ context.Context, session, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[session], name)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
