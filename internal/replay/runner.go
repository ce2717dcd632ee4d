package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/aggregate"
	"solana-coil-detector/internal/coil"
	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/engine"
	"solana-coil-detector/internal/ingest"
	pubmem "solana-coil-detector/internal/pubsub/memory"
	"solana-coil-detector/internal/regime"
	"solana-coil-detector/internal/storage/memory"
)

// replayGraceMs mirrors the live reorder grace so the final drain
// clears every buffered event.
const replayGraceMs = 2000

// Options configures a replay run.
type Options struct {
	// Thresholds defaults to the built-in defaults.
	Thresholds *config.ThresholdConfig
	// Interval is the simulated tick cadence, default 2s.
	Interval time.Duration
	// PriorWinners seeds the cohort-overlap reference set.
	PriorWinners map[string]struct{}

	Log zerolog.Logger
}

// StateChange is one observed state-machine transition.
type StateChange struct {
	TickMs     int64            `json:"tick_ms"`
	Pool       string           `json:"pool"`
	From       domain.CoilState `json:"from"`
	To         domain.CoilState `json:"to"`
	Suppressed bool             `json:"suppressed,omitempty"`
}

// Result is the full outcome of one replay run.
type Result struct {
	Rows  int      `json:"rows"`
	Ticks int      `json:"ticks"`
	Pools []string `json:"pools"`

	Trace   []StateChange            `json:"trace"`
	Signals []*domain.DetectorSignal `json:"signals"`

	// Fingerprint digests every pool's state and flow accumulators at
	// every tick; two runs over the same recording must produce the
	// same value.
	Fingerprint string `json:"fingerprint"`
}

// Runner replays recordings through a fresh pipeline per run.
type Runner struct {
	opts Options
}

func NewRunner(opts Options) *Runner {
	if opts.Thresholds == nil {
		opts.Thresholds = config.DefaultThresholds()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	return &Runner{opts: opts}
}

// Run sorts the recording into chain order and folds it through the
// aggregator, ticking the engine at the configured cadence in event
// time. The rows slice is not modified.
func (r *Runner) Run(ctx context.Context, rows []ingest.Row) (*Result, error) {
	sorted := make([]ingest.Row, len(rows))
	copy(sorted, rows)
	SortRows(sorted)

	events := make([]domain.Event, 0, len(sorted))
	firstTs, lastTs := int64(0), int64(0)
	for i := range sorted {
		ev, err := sorted[i].Event()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ts := ev.EventTimeMs()
		if len(events) == 0 || ts < firstTs {
			firstTs = ts
		}
		if ts > lastTs {
			lastTs = ts
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return &Result{Fingerprint: hexDigest(sha256.New().Sum(nil))}, nil
	}

	agg := aggregate.New(aggregate.Options{
		Params:       aggregate.DefaultParams(),
		PriorWinners: r.opts.PriorWinners,
		GraceMs:      replayGraceMs,
		Log:          r.opts.Log,
	})
	publisher := pubmem.NewPublisher()
	eng, err := engine.New(engine.Options{
		Aggregator: agg,
		Machine:    coil.NewMachine(),
		Classifier: regime.NewClassifier(regime.Options{}),
		Features:   memory.NewFeatureStore(),
		Signals:    memory.NewSignalStore(),
		Gaps:       memory.NewGapStore(),
		Publisher:  publisher,
		Log:        r.opts.Log,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	res := &Result{Rows: len(sorted)}
	digest := sha256.New()

	intervalMs := r.opts.Interval.Milliseconds()
	endMs := lastTs + replayGraceMs + intervalMs
	next := 0
	seen := map[string]struct{}{}

	for tickMs := firstTs + intervalMs; ; tickMs += intervalMs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Everything the feed would have delivered by now.
		for next < len(events) && events[next].EventTimeMs() <= tickMs {
			if err := agg.Ingest(events[next]); err != nil {
				return nil, err
			}
			seen[events[next].EventPool()] = struct{}{}
			next++
		}

		pools := eng.Pools()
		sort.Strings(pools)

		snaps := make([]*domain.FeatureSnapshot, 0, len(pools))
		for _, pool := range pools {
			if snap := eng.TickPool(pool, r.opts.Thresholds, tickMs); snap != nil {
				snaps = append(snaps, snap)
			}
		}
		reg := eng.Classify(snaps)

		fmt.Fprintf(digest, "tick %d\n", tickMs)
		for _, snap := range snaps {
			trans := eng.Commit(ctx, snap, reg, r.opts.Thresholds, tickMs)
			if trans.Changed() || trans.Suppressed {
				res.Trace = append(res.Trace, StateChange{
					TickMs:     tickMs,
					Pool:       trans.Pool,
					From:       trans.From,
					To:         trans.To,
					Suppressed: trans.Suppressed,
				})
			}
			hashSnapshot(digest, snap)
		}
		res.Ticks++

		if tickMs >= endMs {
			break
		}
	}

	res.Signals = publisher.Signals()
	res.Pools = make([]string, 0, len(seen))
	for pool := range seen {
		res.Pools = append(res.Pools, pool)
	}
	sort.Strings(res.Pools)
	res.Fingerprint = hexDigest(digest.Sum(nil))
	return res, nil
}

// hashSnapshot folds the replay-relevant state into the digest: machine
// state, the flow accumulators, and every primitive outcome. Floats go
// in at full precision so even last-bit divergence is caught.
func hashSnapshot(w io.Writer, snap *domain.FeatureSnapshot) {
	buf := make([]byte, 0, 256)
	buf = append(buf, snap.Pool...)
	buf = append(buf, '|')
	buf = append(buf, snap.State.String()...)
	for _, v := range []float64{snap.CVD, snap.CVDSlope60m, snap.VCRatio, snap.ATRPct15m, snap.Alternation15m} {
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	for _, p := range domain.Primitives {
		out := snap.Outcome(p)
		buf = append(buf, '|')
		buf = strconv.AppendBool(buf, out.Passed)
		buf = append(buf, ':')
		buf = strconv.AppendFloat(buf, out.Score, 'g', -1, 64)
	}
	buf = append(buf, '\n')
	w.Write(buf)
}

func hexDigest(sum []byte) string {
	return hex.EncodeToString(sum)
}
