package pricing

import (
	"context"
	"sync"
)

// MemoryStore is an in-process PackStore used by tests and demo mode.
type MemoryStore struct {
	mu    sync.RWMutex
	packs map[string]*Pack
}

// NewMemoryStore creates an empty in-memory pack store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{packs: make(map[string]*Pack)}
}

// Put stores a pack. Packs are write-once; storing the same id twice is a
// programming error surfaced to the caller.
func (s *MemoryStore) Put(pack *Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.packs[pack.ID]; exists {
		return &ErrPackExists{ID: pack.ID}
	}
	s.packs[pack.ID] = pack
	return nil
}

func (s *MemoryStore) Pack(ctx context.Context, id string) (*Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pack, ok := s.packs[id]
	if !ok {
		return nil, &ErrPackNotFound{ID: id}
	}
	return pack, nil
}
