// Package dedupe guards signal emission across detector processes.
// The in-process state machine already enforces the per-pool cooldown;
// this layer extends the same guarantee across replicas sharing a
// Redis instance.
package dedupe

import (
	"context"
	"time"
)

// Deduper claims emission slots. Claim returns true when the caller
// won the slot and may emit; a false return means another emission for
// the same pool happened within the cooldown.
type Deduper interface {
	Claim(ctx context.Context, pool string, cooldown time.Duration) (bool, error)
	Close() error
}
