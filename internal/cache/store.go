package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry is a cached response body with its freshness
type Entry struct {
	Data      json.RawMessage
	UpdatedAt time.Time
	Stale     bool
}

// Store persists cache entries
type Store interface {
	Load(ctx context.Context, key Key) (Entry, bool, error)
	Save(ctx context.Context, key Key, entry Entry) error
	MarkStale(ctx context.Context, key Key) error
}

// MemoryStore is a concurrency-safe in-process Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]Entry)}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	return nil
}

// MarkStale flags an existing entry; missing keys are left alone
func (s *MemoryStore) MarkStale(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.Stale = true
		s.entries[key] = e
	}
	return nil
}
