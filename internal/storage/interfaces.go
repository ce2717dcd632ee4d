package storage

import (
	"context"

	"solana-coil-detector/internal/domain"
)

// FeatureStore provides access to features_latest storage: one row per
// pool holding the most recent feature vector, replaced on every tick.
type FeatureStore interface {
	// Upsert inserts or replaces the pool's latest snapshot.
	Upsert(ctx context.Context, snap *domain.FeatureSnapshot) error

	// GetByPool retrieves the latest snapshot for a pool. Returns
	// ErrNotFound if the pool has never been written.
	GetByPool(ctx context.Context, pool string) (*domain.FeatureSnapshot, error)

	// GetAll retrieves the latest snapshot of every pool, ordered by
	// pool ascending.
	GetAll(ctx context.Context) ([]*domain.FeatureSnapshot, error)
}

// SignalStore provides access to detector_signal storage. Append-only.
type SignalStore interface {
	// Insert adds a new signal. Returns ErrDuplicateKey if
	// (pool, timestamp_ms) exists.
	Insert(ctx context.Context, sig *domain.DetectorSignal) error

	// GetByPool retrieves all signals for a pool, ordered by timestamp ASC.
	GetByPool(ctx context.Context, pool string) ([]*domain.DetectorSignal, error)

	// GetSince retrieves all signals with timestamp >= since, ordered
	// by timestamp ASC.
	GetSince(ctx context.Context, sinceMs int64) ([]*domain.DetectorSignal, error)
}

// Cursor is the scheduler heartbeat: the last completed tick and the
// number of pools it covered.
type Cursor struct {
	TickMs int64
	Pools  int
}

// CursorStore persists the single-row detector_cursor heartbeat.
type CursorStore interface {
	// Get returns the last recorded cursor. Returns ErrNotFound before
	// the first tick completes.
	Get(ctx context.Context) (*Cursor, error)

	// Set upserts the cursor.
	Set(ctx context.Context, c *Cursor) error
}

// GapStore provides access to event_gap storage: the audit trail of
// events dropped for arriving beyond the reorder bound. Append-only.
type GapStore interface {
	// Insert adds a gap record.
	Insert(ctx context.Context, gap *domain.GapRecord) error

	// GetByPool retrieves all gap records for a pool, ordered by
	// timestamp ASC.
	GetByPool(ctx context.Context, pool string) ([]*domain.GapRecord, error)
}

// SnapshotHistoryStore provides access to feature_snapshot_history:
// every tick's snapshot of every pool, kept for offline analysis.
// Append-only, written in batches.
type SnapshotHistoryStore interface {
	// InsertBulk appends a batch of snapshots.
	InsertBulk(ctx context.Context, snaps []*domain.FeatureSnapshot) error
}
