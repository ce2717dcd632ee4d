package postgres

import (
	"context"
	"fmt"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// GapStore implements storage.GapStore using PostgreSQL.
type GapStore struct {
	pool *Pool
}

// NewGapStore creates a new GapStore.
func NewGapStore(pool *Pool) *GapStore {
	return &GapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GapStore = (*GapStore)(nil)

// Insert adds a gap record.
func (s *GapStore) Insert(ctx context.Context, gap *domain.GapRecord) error {
	if gap == nil || gap.Pool == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_gap (pool, from_slot, to_slot, dropped, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5)
	`,
		gap.Pool,
		gap.FromSlot,
		gap.ToSlot,
		gap.Dropped,
		gap.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("%w: insert event_gap: %v", storage.ErrWrite, err)
	}
	return nil
}

// GetByPool retrieves all gap records for a pool, ordered by timestamp ASC.
func (s *GapStore) GetByPool(ctx context.Context, pool string) ([]*domain.GapRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool, from_slot, to_slot, dropped, timestamp_ms
		FROM event_gap
		WHERE pool = $1
		ORDER BY timestamp_ms ASC, id ASC
	`, pool)
	if err != nil {
		return nil, fmt.Errorf("get gaps by pool: %w", err)
	}
	defer rows.Close()

	var gaps []*domain.GapRecord
	for rows.Next() {
		var gap domain.GapRecord
		err := rows.Scan(&gap.Pool, &gap.FromSlot, &gap.ToSlot, &gap.Dropped, &gap.TimestampMs)
		if err != nil {
			return nil, fmt.Errorf("scan gap row: %w", err)
		}
		gaps = append(gaps, &gap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gap rows: %w", err)
	}
	return gaps, nil
}
