package chain

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store. It is used by tests and by
// single-process deployments that do not need the chain to survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []Block
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryLedger is a convenience for an independent in-memory Ledger.
func NewMemoryLedger() *Ledger {
	return New(NewMemoryStore(), nil)
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, next NextFunc) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tail *Block
	if n := len(s.blocks); n > 0 {
		t := s.blocks[n-1]
		tail = &t
	}

	b, err := next(tail)
	if err != nil {
		return nil, err
	}
	if b.Index != len(s.blocks) {
		return nil, fmt.Errorf("block index %d does not extend chain of length %d", b.Index, len(s.blocks))
	}

	s.blocks = append(s.blocks, *b)
	out := *b
	return &out, nil
}

// Blocks implements Store.
func (s *MemoryStore) Blocks(_ context.Context) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Block, len(s.blocks))
	copy(out, s.blocks)
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, index int) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.blocks) {
		return nil, ErrNotFound
	}
	b := s.blocks[index]
	return &b, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks), nil
}
