// Package aggregate owns the per-pool rolling statistics. Events are
// folded in strict per-pool slot order; a bounded reorder buffer
// absorbs late arrivals, and anything beyond it is dropped with a gap
// record instead of corrupting the CVD trajectory.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/domain"
)

// ErrOutOfOrderEvent is returned when an event's slot precedes the
// highest slot already folded for its pool.
var ErrOutOfOrderEvent = errors.New("event out of slot order")

// Options configures an Aggregator.
type Options struct {
	Params Params
	// PriorWinners is the reference cohort for the Jaccard overlap.
	PriorWinners map[string]struct{}
	// GraceMs delays folding so late events can be reordered.
	GraceMs int64
	// MaxPending caps the per-pool reorder buffer; overflow is folded
	// (or dropped) immediately, oldest first.
	MaxPending int
	// IdleEvictMs evicts a pool's state after this inactivity.
	IdleEvictMs int64
	// OnGap is invoked for every drop; nil means log-only. Must not
	// block: callers hand the record to an async writer.
	OnGap func(domain.GapRecord)

	Log zerolog.Logger
}

// Aggregator folds normalized events into per-pool window state. The
// pool map and each slot carry their own locks, so ingestion from the
// feed runs concurrently with tick-time drain, snapshot and eviction.
// Snapshot must still be called once per tick per pool: it rolls the
// prior-tick reference values forward.
type Aggregator struct {
	opts Options

	mu    sync.RWMutex
	pools map[string]*poolSlot
}

// poolSlot is one pool's buffered events plus rolling state. The slot
// lock covers both; lock ordering is map before slot, never the
// reverse. evicted marks a slot removed from the map so late holders
// re-resolve instead of mutating an orphan.
type poolSlot struct {
	mu      sync.Mutex
	evicted bool
	state   *PoolWindowState
	pending []domain.Event
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 64
	}
	if opts.GraceMs <= 0 {
		opts.GraceMs = 2000
	}
	if opts.PriorWinners == nil {
		opts.PriorWinners = make(map[string]struct{})
	}
	return &Aggregator{
		opts:  opts,
		pools: make(map[string]*poolSlot),
	}
}

// Ingest buffers an event for its pool. Folding happens on Drain so
// that late arrivals inside the grace window can be reordered first.
// Safe to call concurrently with Drain, Snapshot and Evict.
func (a *Aggregator) Ingest(ev domain.Event) error {
	pool := ev.EventPool()
	if pool == "" {
		return fmt.Errorf("event without pool (slot %d)", ev.EventSlot())
	}
	slot := a.lockSlot(pool, ev.EventTimeMs(), ev)
	defer slot.mu.Unlock()
	slot.pending = append(slot.pending, ev)
	if len(slot.pending) > a.opts.MaxPending {
		a.drainSlot(pool, slot, ev.EventTimeMs(), true)
	}
	return nil
}

// Drain folds all buffered events for pool whose timestamp has cleared
// the grace watermark, in slot order.
func (a *Aggregator) Drain(pool string, nowMs int64) {
	a.mu.RLock()
	slot, ok := a.pools[pool]
	a.mu.RUnlock()
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.evicted || len(slot.pending) == 0 {
		return
	}
	a.drainSlot(pool, slot, nowMs, false)
}

// drainSlot applies pending events in slot order. The slot lock must be
// held. When force is set the watermark is ignored (buffer overflow).
func (a *Aggregator) drainSlot(pool string, slot *poolSlot, nowMs int64, force bool) {
	sort.SliceStable(slot.pending, func(i, j int) bool {
		return slot.pending[i].EventSlot() < slot.pending[j].EventSlot()
	})

	watermark := nowMs - a.opts.GraceMs
	kept := slot.pending[:0]
	dropped := 0
	var gapFrom, gapTo int64
	for _, ev := range slot.pending {
		if !force && ev.EventTimeMs() > watermark {
			kept = append(kept, ev)
			continue
		}
		if err := a.foldLocked(slot, ev); err != nil {
			// Too late to reorder: record the gap, never apply.
			dropped++
			gapFrom = slot.state.LastSlot()
			if ev.EventSlot() > gapTo {
				gapTo = ev.EventSlot()
			}
			continue
		}
	}
	slot.pending = kept

	if dropped > 0 {
		rec := domain.GapRecord{
			Pool:        pool,
			FromSlot:    gapFrom,
			ToSlot:      gapTo,
			Dropped:     dropped,
			TimestampMs: nowMs,
		}
		a.opts.Log.Warn().
			Str("pool", pool).
			Int64("from_slot", rec.FromSlot).
			Int64("to_slot", rec.ToSlot).
			Int("dropped", dropped).
			Msg("dropped out-of-order events")
		if a.opts.OnGap != nil {
			a.opts.OnGap(rec)
		}
	}
}

// Fold applies one event to its pool's state, in slot order. Events
// whose slot precedes the highest folded slot are rejected with
// ErrOutOfOrderEvent; they must never be applied.
func (a *Aggregator) Fold(ev domain.Event) error {
	pool := ev.EventPool()
	if pool == "" {
		return fmt.Errorf("event without pool (slot %d)", ev.EventSlot())
	}
	slot := a.lockSlot(pool, ev.EventTimeMs(), ev)
	defer slot.mu.Unlock()
	return a.foldLocked(slot, ev)
}

// foldLocked applies one event to the slot's state. The slot lock must
// be held.
func (a *Aggregator) foldLocked(slot *poolSlot, ev domain.Event) error {
	st := slot.state
	if ev.EventSlot() < st.LastSlot() {
		return fmt.Errorf("%w: pool %s slot %d < %d", ErrOutOfOrderEvent, st.pool, ev.EventSlot(), st.LastSlot())
	}

	switch e := ev.(type) {
	case *domain.SwapEvent:
		st.foldSwap(e, a.opts.Params)
	case *domain.LiquidityEvent:
		st.foldLiquidity(e)
	case *domain.AuthorityEvent:
		st.foldAuthority(e)
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
	return nil
}

// lockSlot returns the pool's slot with its lock held, creating state
// on first contact. A slot evicted between lookup and lock is dropped
// and re-resolved, so an event racing Evict lands in fresh state
// instead of an orphaned one.
func (a *Aggregator) lockSlot(pool string, tsMs int64, ev domain.Event) *poolSlot {
	for {
		slot := a.slotFor(pool, tsMs, ev)
		slot.mu.Lock()
		if !slot.evicted {
			return slot
		}
		slot.mu.Unlock()
	}
}

// slotFor returns the pool's slot, creating state on first contact.
func (a *Aggregator) slotFor(pool string, tsMs int64, ev domain.Event) *poolSlot {
	a.mu.RLock()
	slot, ok := a.pools[pool]
	a.mu.RUnlock()
	if ok {
		return slot
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if slot, ok := a.pools[pool]; ok {
		return slot
	}
	token := ""
	if sw, ok := ev.(*domain.SwapEvent); ok {
		token = sw.Token
	}
	created := &poolSlot{
		state: newPoolWindowState(pool, token, tsMs, a.opts.Params, a.opts.PriorWinners),
	}
	a.pools[pool] = created
	return created
}

// Snapshot builds the feature snapshot for one pool at nowMs.
// Returns nil when the pool is unknown.
func (a *Aggregator) Snapshot(pool string, nowMs int64) *domain.FeatureSnapshot {
	a.mu.RLock()
	slot, ok := a.pools[pool]
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.evicted {
		return nil
	}
	return slot.state.Snapshot(nowMs)
}

// Pools lists pools with live state, in deterministic order.
func (a *Aggregator) Pools() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.pools))
	for p := range a.pools {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Evict drops state for pools idle past the horizon. This is the only
// place CVD resets. Returns the evicted pool ids.
func (a *Aggregator) Evict(nowMs int64) []string {
	if a.opts.IdleEvictMs <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var evicted []string
	for pool, slot := range a.pools {
		slot.mu.Lock()
		if len(slot.pending) > 0 || nowMs-slot.state.lastEventMs <= a.opts.IdleEvictMs {
			slot.mu.Unlock()
			continue
		}
		slot.evicted = true
		slot.mu.Unlock()
		delete(a.pools, pool)
		evicted = append(evicted, pool)
	}
	sort.Strings(evicted)
	return evicted
}

// StateFor exposes a pool's state for replay verification and tests.
func (a *Aggregator) StateFor(pool string) *PoolWindowState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if slot, ok := a.pools[pool]; ok {
		return slot.state
	}
	return nil
}
