package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage keeps all stores in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	stores map[string]*memoryStore
	closed bool
	now    func() time.Time
}

type memoryStore struct {
	name    string
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{stores: map[string]*memoryStore{}, now: time.Now}
}

func (m *MemoryStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.stores[name]
	if !ok {
		s = &memoryStore{name: name, now: m.now, entries: map[string]Entry{}}
		m.stores[name] = s
	}
	return s, nil
}

func (m *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stores[name]
	return ok, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[name]; !ok {
		return false, nil
	}
	delete(m.stores, name)
	return true, nil
}

func (m *MemoryStorage) Names(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.stores))
	for name := range m.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (s *memoryStore) Name() string { return s.name }

func (s *memoryStore) Match(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	ent.LastAccess = s.now().UnixNano()
	s.entries[key] = ent
	return cloneEntry(ent), true, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, ent Entry) error {
	now := s.now().UnixNano()
	ent = cloneEntry(ent)
	ent.Header = StorableHeader(ent.Header)
	if ent.StoredAt == 0 {
		ent.StoredAt = now
	}
	ent.LastAccess = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = ent
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *memoryStore) Entries(ctx context.Context) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, 0, len(s.entries))
	for k, e := range s.entries {
		out = append(out, Meta{Key: k, Size: int64(len(e.Body)), StoredAt: e.StoredAt, LastAccess: e.LastAccess})
	}
	return out, nil
}
