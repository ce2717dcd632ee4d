package memory

import (
	"context"
	"sort"
	"sync"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeatureSnapshot // keyed by pool
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[string]*domain.FeatureSnapshot),
	}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// Upsert inserts or replaces the pool's latest snapshot.
func (s *FeatureStore) Upsert(_ context.Context, snap *domain.FeatureSnapshot) error {
	if snap == nil || snap.Pool == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.Pool] = cloneSnapshot(snap)
	return nil
}

// GetByPool retrieves the latest snapshot for a pool.
func (s *FeatureStore) GetByPool(_ context.Context, pool string) (*domain.FeatureSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[pool]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// GetAll retrieves the latest snapshot of every pool, ordered by pool.
func (s *FeatureStore) GetAll(_ context.Context) ([]*domain.FeatureSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.FeatureSnapshot, 0, len(s.data))
	for _, snap := range s.data {
		out = append(out, cloneSnapshot(snap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out, nil
}

// cloneSnapshot deep-copies a snapshot so callers cannot alias stored
// state through the outcomes map.
func cloneSnapshot(snap *domain.FeatureSnapshot) *domain.FeatureSnapshot {
	cp := *snap
	if snap.Outcomes != nil {
		cp.Outcomes = make(map[string]domain.Outcome, len(snap.Outcomes))
		for k, v := range snap.Outcomes {
			cp.Outcomes[k] = v
		}
	}
	return &cp
}
