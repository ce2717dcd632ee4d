package memory

import (
	"context"
	"sync"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// SnapshotHistoryStore is an in-memory implementation of
// storage.SnapshotHistoryStore, used in tests and replay runs that do
// not need ClickHouse.
type SnapshotHistoryStore struct {
	mu   sync.RWMutex
	data []*domain.FeatureSnapshot
}

// NewSnapshotHistoryStore creates a new in-memory history store.
func NewSnapshotHistoryStore() *SnapshotHistoryStore {
	return &SnapshotHistoryStore{}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// InsertBulk appends a batch of snapshots.
func (s *SnapshotHistoryStore) InsertBulk(_ context.Context, snaps []*domain.FeatureSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if snap == nil || snap.Pool == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.data = append(s.data, cloneSnapshot(snap))
	}
	return nil
}

// Len returns the number of stored snapshots.
func (s *SnapshotHistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// ByPool returns every stored snapshot for a pool in insertion order.
func (s *SnapshotHistoryStore) ByPool(pool string) []*domain.FeatureSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.FeatureSnapshot
	for _, snap := range s.data {
		if snap.Pool == pool {
			out = append(out, cloneSnapshot(snap))
		}
	}
	return out
}
