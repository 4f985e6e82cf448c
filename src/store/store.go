// Package store persists the current AI-group pointer outside the
// socket session so it survives process restarts.
package store

import (
	"context"
	"sync"
)

// GroupStore is a single string slot holding the current AI group id.
type GroupStore interface {
	// Get returns the stored group id, or "" when the slot is empty.
	Get(ctx context.Context) (string, error)
	// Set writes the group id.
	Set(ctx context.Context, groupID string) error
	// Clear empties the slot.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process GroupStore for tests and standalone use.
type MemoryStore struct {
	mu sync.RWMutex
	id string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, nil
}

func (s *MemoryStore) Set(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = groupID
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}
