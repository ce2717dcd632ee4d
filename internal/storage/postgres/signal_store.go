package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Insert adds a new signal. Returns ErrDuplicateKey if (pool, timestamp_ms) exists.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.DetectorSignal) error {
	if sig == nil || sig.Pool == "" {
		return storage.ErrInvalidInput
	}

	reasons, err := json.Marshal(sig.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	query := `
		INSERT INTO detector_signal (
			timestamp_ms, pool, token, signal_type, score, reasons, state
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		sig.TimestampMs,
		sig.Pool,
		sig.Token,
		sig.SignalType,
		sig.Score,
		reasons,
		sig.State,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("%w: insert detector_signal: %v", storage.ErrWrite, err)
	}
	return nil
}

// GetByPool retrieves all signals for a pool, ordered by timestamp ASC.
func (s *SignalStore) GetByPool(ctx context.Context, pool string) ([]*domain.DetectorSignal, error) {
	query := `
		SELECT timestamp_ms, pool, token, signal_type, score, reasons, state
		FROM detector_signal
		WHERE pool = $1
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("get signals by pool: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetSince retrieves all signals with timestamp >= since, ordered by
// timestamp ASC.
func (s *SignalStore) GetSince(ctx context.Context, sinceMs int64) ([]*domain.DetectorSignal, error) {
	query := `
		SELECT timestamp_ms, pool, token, signal_type, score, reasons, state
		FROM detector_signal
		WHERE timestamp_ms >= $1
		ORDER BY timestamp_ms ASC, pool ASC
	`

	rows, err := s.pool.Query(ctx, query, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("get signals since: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// scanSignals scans multiple rows into a slice of DetectorSignal.
func scanSignals(rows pgx.Rows) ([]*domain.DetectorSignal, error) {
	var sigs []*domain.DetectorSignal

	for rows.Next() {
		var (
			sig     domain.DetectorSignal
			reasons []byte
		)
		err := rows.Scan(
			&sig.TimestampMs,
			&sig.Pool,
			&sig.Token,
			&sig.SignalType,
			&sig.Score,
			&reasons,
			&sig.State,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &sig.Reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reasons: %w", err)
			}
		}
		sigs = append(sigs, &sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return sigs, nil
}
