// Package scheduler drives the detection engine at a fixed cadence.
// Pools are partitioned across worker shards: ticks run concurrently
// across pools but a single pool is always handled by exactly one
// goroutine, so its fold → evaluate → transition path stays serial.
package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/engine"
	"solana-coil-detector/internal/observability"
	"solana-coil-detector/internal/regime"
)

// Options for creating a Scheduler.
type Options struct {
	Engine  *engine.Engine
	Watcher *config.Watcher

	// Interval is the tick cadence.
	Interval time.Duration
	// Shards is the number of worker goroutines per tick phase.
	Shards int
	// ShutdownGrace bounds how long an in-flight tick may run after
	// the run context is cancelled.
	ShutdownGrace time.Duration

	Metrics *observability.Metrics
	Log     zerolog.Logger
}

// Scheduler owns the tick loop.
type Scheduler struct {
	opts    Options
	flushWG sync.WaitGroup
}

// New creates a Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("scheduler requires an engine")
	}
	if opts.Watcher == nil {
		return nil, fmt.Errorf("scheduler requires a threshold watcher")
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	return &Scheduler{opts: opts}, nil
}

// Run ticks until ctx is cancelled. The in-flight tick gets
// ShutdownGrace to finish; async history flushes are waited for.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.opts.Log.Info().
		Dur("interval", s.opts.Interval).
		Int("shards", s.opts.Shards).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.flushWG.Wait()
			s.opts.Log.Info().Msg("scheduler stopped")
			return nil
		case now := <-ticker.C:
			tickCtx, cancel := context.WithCancel(context.Background())
			stop := context.AfterFunc(ctx, func() {
				// Shutdown arrived mid-tick: grant the grace
				// period before cutting the tick's context.
				select {
				case <-time.After(s.opts.ShutdownGrace):
					cancel()
				case <-tickCtx.Done():
				}
			})
			s.RunTick(tickCtx, now)
			stop()
			cancel()
		}
	}
}

// RunTick executes one full detection pass: evaluate every pool,
// classify the cross-section, commit transitions, then flush history
// and bookkeeping. Returns the number of pools processed.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) int {
	start := time.Now()
	nowMs := now.UnixMilli()

	s.opts.Watcher.Reload()
	th := s.opts.Watcher.Current()

	pools := s.opts.Engine.Pools()
	shards := s.partition(pools)

	// Phase 1: drain, snapshot and evaluate, parallel across shards.
	perShard := make([][]*domain.FeatureSnapshot, len(shards))
	var wg sync.WaitGroup
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, shard []string) {
			defer wg.Done()
			out := make([]*domain.FeatureSnapshot, 0, len(shard))
			for _, pool := range shard {
				if snap := s.opts.Engine.TickPool(pool, th, nowMs); snap != nil {
					out = append(out, snap)
				}
			}
			perShard[i] = out
		}(i, shard)
	}
	wg.Wait()

	var snaps []*domain.FeatureSnapshot
	for _, out := range perShard {
		snaps = append(snaps, out...)
	}

	// Phase 2: the regime needs the full cross-section before any pool
	// can transition.
	reg := s.opts.Engine.Classify(snaps)
	s.commit(ctx, perShard, reg, th, nowMs)

	// History is append-only and off the hot path.
	batch := snaps
	s.flushWG.Add(1)
	go func() {
		defer s.flushWG.Done()
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.opts.Engine.FlushHistory(flushCtx, batch)
	}()

	s.opts.Engine.RecordCursor(ctx, nowMs, len(snaps))
	evicted := s.opts.Engine.EvictIdle(nowMs)

	s.opts.Metrics.TicksTotal.Inc()
	s.opts.Metrics.TickDuration.Observe(time.Since(start).Seconds())
	s.opts.Metrics.ActivePools.Set(float64(len(pools) - len(evicted)))
	s.opts.Metrics.LastTickTimestamp.Set(float64(nowMs) / 1000.0)

	return len(snaps)
}

// commit runs phase 2 with the same pool→shard assignment as phase 1.
func (s *Scheduler) commit(ctx context.Context, perShard [][]*domain.FeatureSnapshot, reg *regime.Snapshot, th *config.ThresholdConfig, nowMs int64) {
	var wg sync.WaitGroup
	for _, shard := range perShard {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard []*domain.FeatureSnapshot) {
			defer wg.Done()
			for _, snap := range shard {
				s.opts.Engine.Commit(ctx, snap, reg, th, nowMs)
			}
		}(shard)
	}
	wg.Wait()
}

// partition assigns pools to shards by hash so a pool always lands on
// the same shard.
func (s *Scheduler) partition(pools []string) [][]string {
	shards := make([][]string, s.opts.Shards)
	for _, pool := range pools {
		i := shardFor(pool, s.opts.Shards)
		shards[i] = append(shards[i], pool)
	}
	return shards
}

func shardFor(pool string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(pool))
	return int(h.Sum32() % uint32(shards))
}
