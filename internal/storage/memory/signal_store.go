package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DetectorSignal // keyed by (pool, ts)
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.DetectorSignal),
	}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

func signalKey(pool string, tsMs int64) string {
	return fmt.Sprintf("%s|%d", pool, tsMs)
}

// Insert adds a new signal. Returns ErrDuplicateKey if exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.DetectorSignal) error {
	if sig == nil || sig.Pool == "" {
		return storage.ErrInvalidInput
	}

	key := signalKey(sig.Pool, sig.TimestampMs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = cloneSignal(sig)
	return nil
}

// GetByPool retrieves all signals for a pool, ordered by timestamp ASC.
func (s *SignalStore) GetByPool(_ context.Context, pool string) ([]*domain.DetectorSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DetectorSignal
	for _, sig := range s.data {
		if sig.Pool == pool {
			out = append(out, cloneSignal(sig))
		}
	}
	sortSignals(out)
	return out, nil
}

// GetSince retrieves all signals with timestamp >= since, ordered by
// timestamp ASC.
func (s *SignalStore) GetSince(_ context.Context, sinceMs int64) ([]*domain.DetectorSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DetectorSignal
	for _, sig := range s.data {
		if sig.TimestampMs >= sinceMs {
			out = append(out, cloneSignal(sig))
		}
	}
	sortSignals(out)
	return out, nil
}

func sortSignals(sigs []*domain.DetectorSignal) {
	sort.Slice(sigs, func(i, j int) bool {
		if sigs[i].TimestampMs != sigs[j].TimestampMs {
			return sigs[i].TimestampMs < sigs[j].TimestampMs
		}
		return sigs[i].Pool < sigs[j].Pool
	})
}

func cloneSignal(sig *domain.DetectorSignal) *domain.DetectorSignal {
	cp := *sig
	if sig.Reasons != nil {
		cp.Reasons = make(map[string]domain.Reason, len(sig.Reasons))
		for k, v := range sig.Reasons {
			cp.Reasons[k] = v
		}
	}
	return &cp
}
