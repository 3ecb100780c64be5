package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. It provides no durability
// and exists for tests and throwaway instances.
type MemoryStore struct {
	mu      sync.Mutex
	content string
	saves   int
}

// NewMemoryStore creates a memory store preloaded with content.
func NewMemoryStore(content string) *MemoryStore {
	return &MemoryStore{content: content}
}

func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content, nil
}

func (s *MemoryStore) Save(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
	s.saves++
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
