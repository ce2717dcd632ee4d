package memory

import (
	"context"
	"sort"
	"sync"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// GapStore is an in-memory implementation of storage.GapStore.
type GapStore struct {
	mu   sync.RWMutex
	data []*domain.GapRecord
}

// NewGapStore creates a new in-memory gap store.
func NewGapStore() *GapStore {
	return &GapStore{}
}

// Compile-time interface check.
var _ storage.GapStore = (*GapStore)(nil)

// Insert adds a gap record.
func (s *GapStore) Insert(_ context.Context, gap *domain.GapRecord) error {
	if gap == nil || gap.Pool == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *gap
	s.data = append(s.data, &cp)
	return nil
}

// GetByPool retrieves all gap records for a pool, ordered by timestamp ASC.
func (s *GapStore) GetByPool(_ context.Context, pool string) ([]*domain.GapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.GapRecord
	for _, gap := range s.data {
		if gap.Pool == pool {
			cp := *gap
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}
