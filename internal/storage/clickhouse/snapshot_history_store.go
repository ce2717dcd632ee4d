package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

// SnapshotHistoryStore implements storage.SnapshotHistoryStore using
// ClickHouse. History is append-only; MergeTree does not enforce
// uniqueness and the writer never re-sends a tick, so no duplicate
// checks are made.
type SnapshotHistoryStore struct {
	conn *Conn
}

// NewSnapshotHistoryStore creates a new SnapshotHistoryStore.
func NewSnapshotHistoryStore(conn *Conn) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// InsertBulk appends a batch of snapshots.
func (s *SnapshotHistoryStore) InsertBulk(ctx context.Context, snaps []*domain.FeatureSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO feature_snapshot_history (
			pool, token, timestamp_ms, obs,
			atr_pct_15m, atr_pct_24h, vc_ratio, intertrade_slope, return_stdev_15m, return_stdev_prev,
			cvd, cvd_slope_60m, swap_size_cv_15m, alternation_15m,
			x_reserve, y_reserve, fee_bps, depth_1pct_quote, depth_continuity, lp_top_share,
			arrivals_per_min, gini_delta, cohort_jaccard, whale_share,
			watcher_slope, swaps_per_min_z,
			regime_cr, regime_td, regime_cp,
			outcomes, state
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare batch: %v", storage.ErrWrite, err)
	}

	for _, snap := range snaps {
		if snap == nil || snap.Pool == "" {
			return storage.ErrInvalidInput
		}
		outcomes, err := json.Marshal(snap.Outcomes)
		if err != nil {
			return fmt.Errorf("marshal outcomes: %w", err)
		}
		err = batch.Append(
			snap.Pool, snap.Token, uint64(snap.TimestampMs), uint32(snap.Obs),
			snap.ATRPct15m, snap.ATRPct24h, snap.VCRatio, snap.IntertradeSlope, snap.ReturnStdev15m, snap.ReturnStdevPrev,
			snap.CVD, snap.CVDSlope60m, snap.SwapSizeCV15m, snap.Alternation15m,
			snap.XReserve, snap.YReserve, int32(snap.FeeBps), snap.Depth1PctQuote, snap.DepthContinuity, snap.TopHolderLPShare,
			snap.ArrivalsPerMin, snap.GiniDelta, snap.CohortJaccard, snap.WhaleShare,
			snap.WatcherSlope, snap.SwapsPerMinZ,
			snap.RegimeCR, snap.RegimeTD, snap.RegimeCP,
			string(outcomes), snap.State.String(),
		)
		if err != nil {
			return fmt.Errorf("%w: append to batch: %v", storage.ErrWrite, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("%w: send batch: %v", storage.ErrWrite, err)
	}
	return nil
}
