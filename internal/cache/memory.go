package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the entry in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	entry Entry
	set   bool
}

// NewMemoryStore returns an empty store, optionally seeded with entry.
func NewMemoryStore(seed ...Entry) *MemoryStore {
	s := &MemoryStore{}
	if len(seed) > 0 {
		s.entry, s.set = seed[0], true
	}
	return s
}

func (s *MemoryStore) Load(context.Context) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || !s.entry.Usable() {
		return Entry{}, false, nil
	}
	return s.entry, true, nil
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry, s.set = e, true
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry, s.set = Entry{}, false
	return nil
}

func (s *MemoryStore) Close() error { return nil }
