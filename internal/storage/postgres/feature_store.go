package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// FeatureStore implements storage.FeatureStore using PostgreSQL.
type FeatureStore struct {
	pool *Pool
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(pool *Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const featureColumns = `
	pool, token, timestamp_ms, obs,
	atr_pct_15m, atr_pct_24h, vc_ratio, intertrade_slope, return_stdev_15m, return_stdev_prev,
	cvd, cvd_slope_60m, swap_size_cv_15m, alternation_15m,
	x_reserve, y_reserve, fee_bps, depth_1pct_quote, depth_continuity, lp_top_share,
	arrivals_per_min, gini_delta, cohort_jaccard, whale_share,
	watcher_slope, swaps_per_min_z,
	regime_cr, regime_td, regime_cp,
	outcomes, state
`

// Upsert inserts or replaces the pool's latest snapshot.
func (s *FeatureStore) Upsert(ctx context.Context, snap *domain.FeatureSnapshot) error {
	if snap == nil || snap.Pool == "" {
		return storage.ErrInvalidInput
	}

	outcomes, err := json.Marshal(snap.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO features_latest (` + featureColumns + `)
		VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24,
			$25, $26,
			$27, $28, $29,
			$30, $31
		)
		ON CONFLICT (pool) DO UPDATE SET
			token = EXCLUDED.token,
			timestamp_ms = EXCLUDED.timestamp_ms,
			obs = EXCLUDED.obs,
			atr_pct_15m = EXCLUDED.atr_pct_15m,
			atr_pct_24h = EXCLUDED.atr_pct_24h,
			vc_ratio = EXCLUDED.vc_ratio,
			intertrade_slope = EXCLUDED.intertrade_slope,
			return_stdev_15m = EXCLUDED.return_stdev_15m,
			return_stdev_prev = EXCLUDED.return_stdev_prev,
			cvd = EXCLUDED.cvd,
			cvd_slope_60m = EXCLUDED.cvd_slope_60m,
			swap_size_cv_15m = EXCLUDED.swap_size_cv_15m,
			alternation_15m = EXCLUDED.alternation_15m,
			x_reserve = EXCLUDED.x_reserve,
			y_reserve = EXCLUDED.y_reserve,
			fee_bps = EXCLUDED.fee_bps,
			depth_1pct_quote = EXCLUDED.depth_1pct_quote,
			depth_continuity = EXCLUDED.depth_continuity,
			lp_top_share = EXCLUDED.lp_top_share,
			arrivals_per_min = EXCLUDED.arrivals_per_min,
			gini_delta = EXCLUDED.gini_delta,
			cohort_jaccard = EXCLUDED.cohort_jaccard,
			whale_share = EXCLUDED.whale_share,
			watcher_slope = EXCLUDED.watcher_slope,
			swaps_per_min_z = EXCLUDED.swaps_per_min_z,
			regime_cr = EXCLUDED.regime_cr,
			regime_td = EXCLUDED.regime_td,
			regime_cp = EXCLUDED.regime_cp,
			outcomes = EXCLUDED.outcomes,
			state = EXCLUDED.state,
			updated_at = NOW()
	`

	_, err = s.pool.Exec(ctx, query,
		snap.Pool, snap.Token, snap.TimestampMs, snap.Obs,
		snap.ATRPct15m, snap.ATRPct24h, snap.VCRatio, snap.IntertradeSlope, snap.ReturnStdev15m, snap.ReturnStdevPrev,
		snap.CVD, snap.CVDSlope60m, snap.SwapSizeCV15m, snap.Alternation15m,
		snap.XReserve, snap.YReserve, snap.FeeBps, snap.Depth1PctQuote, snap.DepthContinuity, snap.TopHolderLPShare,
		snap.ArrivalsPerMin, snap.GiniDelta, snap.CohortJaccard, snap.WhaleShare,
		snap.WatcherSlope, snap.SwapsPerMinZ,
		snap.RegimeCR, snap.RegimeTD, snap.RegimeCP,
		outcomes, snap.State.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert features_latest: %v", storage.ErrWrite, err)
	}
	return nil
}

// GetByPool retrieves the latest snapshot for a pool.
func (s *FeatureStore) GetByPool(ctx context.Context, pool string) (*domain.FeatureSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+featureColumns+`
		FROM features_latest
		WHERE pool = $1
	`, pool)

	snap, err := scanFeatureRow(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get features by pool: %w", err)
	}
	return snap, nil
}

// GetAll retrieves the latest snapshot of every pool, ordered by pool.
func (s *FeatureStore) GetAll(ctx context.Context) ([]*domain.FeatureSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+featureColumns+`
		FROM features_latest
		ORDER BY pool ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get all features: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.FeatureSnapshot
	for rows.Next() {
		snap, err := scanFeatureRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan features row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features rows: %w", err)
	}
	return snaps, nil
}

// scanFeatureRow scans one features_latest row.
func scanFeatureRow(row pgx.Row) (*domain.FeatureSnapshot, error) {
	var (
		snap     domain.FeatureSnapshot
		outcomes []byte
		state    string
	)
	err := row.Scan(
		&snap.Pool, &snap.Token, &snap.TimestampMs, &snap.Obs,
		&snap.ATRPct15m, &snap.ATRPct24h, &snap.VCRatio, &snap.IntertradeSlope, &snap.ReturnStdev15m, &snap.ReturnStdevPrev,
		&snap.CVD, &snap.CVDSlope60m, &snap.SwapSizeCV15m, &snap.Alternation15m,
		&snap.XReserve, &snap.YReserve, &snap.FeeBps, &snap.Depth1PctQuote, &snap.DepthContinuity, &snap.TopHolderLPShare,
		&snap.ArrivalsPerMin, &snap.GiniDelta, &snap.CohortJaccard, &snap.WhaleShare,
		&snap.WatcherSlope, &snap.SwapsPerMinZ,
		&snap.RegimeCR, &snap.RegimeTD, &snap.RegimeCP,
		&outcomes, &state,
	)
	if err != nil {
		return nil, err
	}

	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &snap.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
	}
	snap.State = parseState(state)
	return &snap, nil
}

func parseState(s string) domain.CoilState {
	switch s {
	case "COIL":
		return domain.StateCoil
	case "ARMED":
		return domain.StateArmed
	case "ENTER":
		return domain.StateEnter
	default:
		return domain.StateQuiet
	}
}
