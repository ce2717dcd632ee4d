// Package engine wires the detection pipeline together: it drains the
// aggregator, evaluates primitives, classifies the cross-sectional
// regime, advances the per-pool state machine and persists / publishes
// the results. The scheduler drives it; the engine itself has no clock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"solana-coil-detector/internal/aggregate"
	"solana-coil-detector/internal/coil"
	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/dedupe"
	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/observability"
	"solana-coil-detector/internal/primitive"
	"solana-coil-detector/internal/pubsub"
	"solana-coil-detector/internal/regime"
	"solana-coil-detector/internal/storage"
)

// Options for creating an Engine. Aggregator, Machine and Classifier
// are required; every store, the publisher and the deduper are
// optional and simply skipped when nil, so the detector degrades to an
// in-memory pipeline when a backend is not configured.
type Options struct {
	Aggregator *aggregate.Aggregator
	Machine    *coil.Machine
	Classifier *regime.Classifier

	Features storage.FeatureStore
	Signals  storage.SignalStore
	Gaps     storage.GapStore
	Cursor   storage.CursorStore
	History  storage.SnapshotHistoryStore

	Publisher pubsub.Publisher
	Deduper   dedupe.Deduper

	// WriteRetryLimit bounds retries of hot-path feature writes.
	WriteRetryLimit int

	Metrics *observability.Metrics
	Log     zerolog.Logger
}

// Engine executes one detection pass per pool per tick.
type Engine struct {
	opts Options

	// history writes go through a breaker so a slow ClickHouse cannot
	// stall the tick path.
	historyBreaker *gobreaker.CircuitBreaker

	gapCh     chan domain.GapRecord
	done      chan struct{}
	wg        chan struct{} // closed when the gap writer exits
	closeOnce sync.Once
}

// New creates an Engine and starts its background gap writer.
func New(opts Options) (*Engine, error) {
	if opts.Aggregator == nil || opts.Machine == nil || opts.Classifier == nil {
		return nil, fmt.Errorf("engine requires aggregator, machine and classifier")
	}
	if opts.WriteRetryLimit <= 0 {
		opts.WriteRetryLimit = 2
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}

	e := &Engine{
		opts: opts,
		historyBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "snapshot-history",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		gapCh: make(chan domain.GapRecord, 256),
		done:  make(chan struct{}),
		wg:    make(chan struct{}),
	}

	go e.gapWriter()

	return e, nil
}

// Close stops the background gap writer after draining buffered records.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	<-e.wg
	return nil
}

// OnGap hands a drop record to the async gap writer. Safe to call from
// the aggregator's fold path; never blocks.
func (e *Engine) OnGap(rec domain.GapRecord) {
	e.opts.Metrics.GapsRecorded.Inc()
	select {
	case e.gapCh <- rec:
	default:
		e.opts.Log.Warn().Str("pool", rec.Pool).Msg("gap writer backlogged, record dropped")
	}
}

// gapWriter persists gap records off the tick path.
func (e *Engine) gapWriter() {
	defer close(e.wg)
	for {
		select {
		case rec := <-e.gapCh:
			e.writeGap(rec)
		case <-e.done:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case rec := <-e.gapCh:
					e.writeGap(rec)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) writeGap(rec domain.GapRecord) {
	if e.opts.Gaps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Gaps.Insert(ctx, &rec); err != nil {
		e.opts.Metrics.RecordWriteError("gap")
		e.opts.Log.Error().Err(err).Str("pool", rec.Pool).Msg("gap insert failed")
	}
}

// Pools lists every pool with live window state.
func (e *Engine) Pools() []string {
	return e.opts.Aggregator.Pools()
}

// TickPool drains the pool's reorder buffer, snapshots its features and
// evaluates all primitives against the current thresholds. Returns nil
// when the pool has no state. Regime fields are zero until Commit.
func (e *Engine) TickPool(pool string, th *config.ThresholdConfig, nowMs int64) *domain.FeatureSnapshot {
	e.opts.Aggregator.Drain(pool, nowMs)
	snap := e.opts.Aggregator.Snapshot(pool, nowMs)
	if snap == nil {
		return nil
	}
	primitive.EvaluateAll(snap, th)
	for _, name := range domain.Primitives {
		if snap.Outcomes[name].Passed {
			e.opts.Metrics.PrimitivePasses.WithLabelValues(name).Inc()
		}
	}
	return snap
}

// Classify runs the cross-sectional regime classifier over this tick's
// snapshots.
func (e *Engine) Classify(snaps []*domain.FeatureSnapshot) *regime.Snapshot {
	return e.opts.Classifier.Classify(snaps)
}

// Commit attaches the regime vector, advances the state machine and
// persists the outcome. Storage failures are logged and retried within
// bounds but never fail the tick; the next tick overwrites the row
// anyway.
func (e *Engine) Commit(ctx context.Context, snap *domain.FeatureSnapshot, reg *regime.Snapshot, th *config.ThresholdConfig, nowMs int64) coil.Transition {
	reg.Attach(snap)

	trans, sig := e.opts.Machine.Tick(snap, th, nowMs)

	if trans.Changed() {
		e.opts.Metrics.RecordTransition(trans.From.String(), trans.To.String())
		e.opts.Log.Info().
			Str("pool", trans.Pool).
			Str("from", trans.From.String()).
			Str("to", trans.To.String()).
			Bool("suppressed", trans.Suppressed).
			Msg("state transition")
	}

	if trans.Suppressed {
		e.opts.Metrics.SignalsSuppressed.Inc()
	}

	if sig != nil {
		e.emit(ctx, sig, th)
	}

	e.upsertFeatures(ctx, snap)

	return trans
}

// emit persists and publishes one detector signal. The cross-process
// dedup claim runs first so only one replica emits per cooldown.
func (e *Engine) emit(ctx context.Context, sig *domain.DetectorSignal, th *config.ThresholdConfig) {
	if e.opts.Deduper != nil {
		won, err := e.opts.Deduper.Claim(ctx, sig.Pool, th.Cooldown)
		if err != nil {
			// Dedup backend down: emit anyway, duplicates beat silence.
			e.opts.Log.Warn().Err(err).Str("pool", sig.Pool).Msg("dedup claim failed")
		} else if !won {
			e.opts.Metrics.SignalsSuppressed.Inc()
			e.opts.Log.Debug().Str("pool", sig.Pool).Msg("signal claimed by another replica")
			return
		}
	}

	if e.opts.Signals != nil {
		err := e.opts.Signals.Insert(ctx, sig)
		if errors.Is(err, storage.ErrDuplicateKey) {
			e.opts.Metrics.SignalsSuppressed.Inc()
			return
		}
		if err != nil {
			e.opts.Metrics.RecordWriteError("signal")
			e.opts.Log.Error().Err(err).Str("pool", sig.Pool).Msg("signal insert failed")
			// Still publish: the signal is time-critical, the row is not.
		}
	}

	if e.opts.Publisher != nil {
		if err := e.opts.Publisher.Publish(ctx, sig); err != nil {
			e.opts.Log.Error().Err(err).Str("pool", sig.Pool).Msg("signal publish failed")
		}
	}

	e.opts.Metrics.SignalsEmitted.Inc()
	e.opts.Log.Info().
		Str("pool", sig.Pool).
		Str("token", sig.Token).
		Float64("score", sig.Score).
		Msg("signal emitted")
}

// upsertFeatures writes the pool's latest snapshot with bounded retry.
func (e *Engine) upsertFeatures(ctx context.Context, snap *domain.FeatureSnapshot) {
	if e.opts.Features == nil {
		return
	}
	var err error
	for attempt := 0; attempt <= e.opts.WriteRetryLimit; attempt++ {
		if attempt > 0 {
			e.opts.Metrics.WriteRetries.Inc()
		}
		if err = e.opts.Features.Upsert(ctx, snap); err == nil {
			return
		}
	}
	e.opts.Metrics.RecordWriteError("features")
	e.opts.Log.Error().Err(err).Str("pool", snap.Pool).Msg("feature upsert failed")
}

// FlushHistory appends this tick's snapshots to the history store. Runs
// behind a circuit breaker; when ClickHouse misbehaves the batch is
// dropped, not queued.
func (e *Engine) FlushHistory(ctx context.Context, snaps []*domain.FeatureSnapshot) {
	if e.opts.History == nil || len(snaps) == 0 {
		return
	}
	_, err := e.historyBreaker.Execute(func() (interface{}, error) {
		return nil, e.opts.History.InsertBulk(ctx, snaps)
	})
	if err != nil {
		e.opts.Metrics.RecordWriteError("history")
		e.opts.Log.Error().Err(err).Int("batch", len(snaps)).Msg("history flush failed")
	}
}

// RecordCursor upserts the tick heartbeat.
func (e *Engine) RecordCursor(ctx context.Context, tickMs int64, pools int) {
	if e.opts.Cursor == nil {
		return
	}
	if err := e.opts.Cursor.Set(ctx, &storage.Cursor{TickMs: tickMs, Pools: pools}); err != nil {
		e.opts.Metrics.RecordWriteError("cursor")
		e.opts.Log.Error().Err(err).Msg("cursor write failed")
	}
}

// EvictIdle drops window and machine state for pools idle beyond the
// aggregator's horizon. The idle horizon must exceed the signal
// cooldown or eviction could reset an active suppression window.
func (e *Engine) EvictIdle(nowMs int64) []string {
	evicted := e.opts.Aggregator.Evict(nowMs)
	for _, pool := range evicted {
		e.opts.Machine.Evict(pool)
		e.opts.Metrics.PoolsEvicted.Inc()
	}
	return evicted
}
