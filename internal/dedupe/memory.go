package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is a single-process Deduper for dev runs and tests.
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]time.Time // pool -> cooldown expiry
	now    func() time.Time
}

// NewMemoryDeduper creates a new in-memory deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ Deduper = (*MemoryDeduper)(nil)

// Claim wins the slot unless a prior claim for the pool is still
// inside its cooldown.
func (d *MemoryDeduper) Claim(_ context.Context, pool string, cooldown time.Duration) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiry, ok := d.claims[pool]; ok && now.Before(expiry) {
		return false, nil
	}
	d.claims[pool] = now.Add(cooldown)
	return true, nil
}

// Close releases nothing; present to satisfy Deduper.
func (d *MemoryDeduper) Close() error { return nil }
