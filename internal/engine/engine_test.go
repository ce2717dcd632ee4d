package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/aggregate"
	"solana-coil-detector/internal/coil"
	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/dedupe"
	"solana-coil-detector/internal/domain"
	pubmem "solana-coil-detector/internal/pubsub/memory"
	"solana-coil-detector/internal/regime"
	"solana-coil-detector/internal/storage/memory"
)

type harness struct {
	engine    *Engine
	features  *memory.FeatureStore
	signals   *memory.SignalStore
	gaps      *memory.GapStore
	publisher *pubmem.Publisher
	deduper   *dedupe.MemoryDeduper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		features:  memory.NewFeatureStore(),
		signals:   memory.NewSignalStore(),
		gaps:      memory.NewGapStore(),
		publisher: pubmem.NewPublisher(),
		deduper:   dedupe.NewMemoryDeduper(),
	}
	eng, err := New(Options{
		Aggregator: aggregate.New(aggregate.Options{Params: aggregate.DefaultParams(), Log: zerolog.Nop()}),
		Machine:    coil.NewMachine(),
		Classifier: regime.NewClassifier(regime.Options{}),
		Features:   h.features,
		Signals:    h.signals,
		Gaps:       h.gaps,
		Publisher:  h.publisher,
		Deduper:    h.deduper,
		Log:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	h.engine = eng
	return h
}

// passingSnap builds a snapshot with every primitive already passing.
func passingSnap(pool string) *domain.FeatureSnapshot {
	snap := &domain.FeatureSnapshot{
		Pool:     pool,
		Token:    "mint-1",
		Outcomes: make(map[string]domain.Outcome, len(domain.Primitives)),
	}
	for _, p := range domain.Primitives {
		snap.Outcomes[p] = domain.Outcome{Passed: true, Score: 0.7}
	}
	return snap
}

func fastTh() *config.ThresholdConfig {
	th := config.DefaultThresholds()
	th.ConfirmTicks = 1
	return th
}

// walkToEnter commits three passing ticks: QUIET->COIL, COIL->ARMED,
// ARMED->ENTER.
func walkToEnter(t *testing.T, h *harness, pool string, th *config.ThresholdConfig, startMs int64) {
	t.Helper()
	ctx := context.Background()
	reg := h.engine.Classify(nil)
	for i := int64(0); i < 3; i++ {
		h.engine.Commit(ctx, passingSnap(pool), reg, th, startMs+i*2000)
	}
}

func TestCommit_FullPathEmitsSignal(t *testing.T) {
	h := newHarness(t)
	th := fastTh()
	ctx := context.Background()

	walkToEnter(t, h, "pool-1", th, 1_000_000)

	published := h.publisher.Signals()
	if len(published) != 1 {
		t.Fatalf("published = %d, want 1", len(published))
	}
	if published[0].Pool != "pool-1" || published[0].State != "ENTER" {
		t.Errorf("unexpected signal: %+v", published[0])
	}

	stored, err := h.signals.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(stored))
	}

	// The latest snapshot row carries the ENTER stamp.
	snap, err := h.features.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("features.GetByPool: %v", err)
	}
	if snap.State != domain.StateEnter {
		t.Errorf("feature state = %v, want ENTER", snap.State)
	}
}

func TestCommit_DeduperLossSkipsEmission(t *testing.T) {
	h := newHarness(t)
	th := fastTh()

	// Another replica already claimed this pool's cooldown slot.
	if won, err := h.deduper.Claim(context.Background(), "pool-1", th.Cooldown); err != nil || !won {
		t.Fatalf("pre-claim failed: %v %v", won, err)
	}

	walkToEnter(t, h, "pool-1", th, 1_000_000)

	if got := h.publisher.Signals(); len(got) != 0 {
		t.Errorf("published = %d, want 0 after losing the claim", len(got))
	}
	stored, _ := h.signals.GetByPool(context.Background(), "pool-1")
	if len(stored) != 0 {
		t.Errorf("stored = %d, want 0 after losing the claim", len(stored))
	}
}

func TestCommit_DuplicateSignalNotRepublished(t *testing.T) {
	h := newHarness(t)
	th := fastTh()
	ctx := context.Background()

	// A row for the exact (pool, timestamp) pair already exists.
	enterMs := int64(1_000_000 + 2*2000)
	pre := &domain.DetectorSignal{
		TimestampMs: enterMs,
		Pool:        "pool-1",
		SignalType:  domain.SignalTypeLong,
		State:       "ENTER",
		Reasons:     map[string]domain.Reason{},
	}
	if err := h.signals.Insert(ctx, pre); err != nil {
		t.Fatalf("pre-insert: %v", err)
	}

	walkToEnter(t, h, "pool-1", th, 1_000_000)

	if got := h.publisher.Signals(); len(got) != 0 {
		t.Errorf("published = %d, want 0 for a duplicate row", len(got))
	}
}

func TestCommit_PoolsIndependent(t *testing.T) {
	h := newHarness(t)
	th := fastTh()

	walkToEnter(t, h, "pool-a", th, 1_000_000)
	walkToEnter(t, h, "pool-b", th, 1_000_000)

	if got := h.publisher.Signals(); len(got) != 2 {
		t.Fatalf("published = %d, want one signal per pool", len(got))
	}
}

func TestOnGap_PersistedByBackgroundWriter(t *testing.T) {
	h := newHarness(t)

	h.engine.OnGap(domain.GapRecord{
		Pool:        "pool-1",
		FromSlot:    10,
		ToSlot:      12,
		Dropped:     2,
		TimestampMs: 5000,
	})

	// Close drains the writer before returning.
	if err := h.engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := h.gaps.GetByPool(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("GetByPool: %v", err)
	}
	if len(recs) != 1 || recs[0].Dropped != 2 {
		t.Fatalf("gap records = %+v, want one with Dropped=2", recs)
	}
}

func TestFlushHistory_NilStoreIsNoop(t *testing.T) {
	h := newHarness(t)
	// Must not panic without a history backend.
	h.engine.FlushHistory(context.Background(), []*domain.FeatureSnapshot{passingSnap("p")})
}

func TestEvictIdle_DropsMachineState(t *testing.T) {
	agg := aggregate.New(aggregate.Options{
		Params:      aggregate.DefaultParams(),
		IdleEvictMs: 60_000,
		Log:         zerolog.Nop(),
	})
	machine := coil.NewMachine()
	eng, err := New(Options{
		Aggregator: agg,
		Machine:    machine,
		Classifier: regime.NewClassifier(regime.Options{}),
		Log:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	ev := &domain.SwapEvent{
		TimestampMs: 10_000, Slot: 1, Pool: "pool-1", Side: domain.SideBuy,
		Price: 1, QuoteAmt: 5, Taker: "w",
	}
	if err := agg.Ingest(ev); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	eng.TickPool("pool-1", config.DefaultThresholds(), 20_000)

	evicted := eng.EvictIdle(10_000 + 120_000)
	if len(evicted) != 1 || evicted[0] != "pool-1" {
		t.Fatalf("evicted = %v, want [pool-1]", evicted)
	}
	if got := len(eng.Pools()); got != 0 {
		t.Errorf("pools after evict = %d, want 0", got)
	}
}
