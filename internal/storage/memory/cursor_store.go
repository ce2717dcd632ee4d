package memory

import (
	"context"
	"sync"

	"solana-coil-detector/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu     sync.RWMutex
	cursor *storage.Cursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the last recorded cursor.
func (s *CursorStore) Get(_ context.Context) (*storage.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cursor == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.cursor
	return &cp, nil
}

// Set upserts the cursor.
func (s *CursorStore) Set(_ context.Context, c *storage.Cursor) error {
	if c == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cursor = &cp
	return nil
}
