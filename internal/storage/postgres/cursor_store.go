package postgres

import (
	"context"
	"fmt"

	"solana-coil-detector/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// detector_cursor holds a single row updated after every completed
// tick, the liveness record for operators and restarts.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the last recorded cursor.
func (s *CursorStore) Get(ctx context.Context) (*storage.Cursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tick_ms, pools
		FROM detector_cursor
		LIMIT 1
	`)

	var c storage.Cursor
	if err := row.Scan(&c.TickMs, &c.Pools); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get detector cursor: %w", err)
	}
	return &c, nil
}

// Set upserts the cursor.
func (s *CursorStore) Set(ctx context.Context, c *storage.Cursor) error {
	if c == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO detector_cursor (id, tick_ms, pools, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET tick_ms = EXCLUDED.tick_ms,
		    pools = EXCLUDED.pools,
		    updated_at = NOW()
	`, c.TickMs, c.Pools)
	if err != nil {
		return fmt.Errorf("%w: set detector cursor: %v", storage.ErrWrite, err)
	}
	return nil
}
