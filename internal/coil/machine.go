// Package coil drives the per-pool detection state machine over the
// primitive outcomes of each tick. States walk QUIET → COIL → ARMED →
// ENTER and never skip; ENTER is a pulse that emits one signal and
// resets to QUIET under a cooldown.
package coil

import (
	"sync"

	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/domain"
)

// Transition records one tick's state-machine outcome for a pool,
// including ENTER pulses suppressed by the cooldown.
type Transition struct {
	Pool string
	From domain.CoilState
	To   domain.CoilState
	// Suppressed marks an ENTER whose emission was skipped because
	// the pool was still cooling down.
	Suppressed bool
}

// Changed reports whether the tick moved the pool's state.
func (t Transition) Changed() bool { return t.From != t.To }

type poolState struct {
	state           domain.CoilState
	confirm         int
	armedSinceMs    int64
	cooldownUntilMs int64
}

// Machine holds every pool's detection state. Ticks for distinct pools
// may run concurrently; ticks for the same pool are serialized by the
// scheduler.
type Machine struct {
	mu    sync.RWMutex
	pools map[string]*poolState
}

func NewMachine() *Machine {
	return &Machine{pools: make(map[string]*poolState)}
}

// Tick advances the pool's state machine from the snapshot's primitive
// outcomes. It stamps the resulting state onto the snapshot and returns
// the transition plus the signal to emit, nil unless this tick is an
// actionable ENTER.
func (m *Machine) Tick(snap *domain.FeatureSnapshot, th *config.ThresholdConfig, nowMs int64) (Transition, *domain.DetectorSignal) {
	st := m.slotFor(snap.Pool)

	vc := snap.Outcome(domain.PrimitiveVC).Passed
	ofs := snap.Outcome(domain.PrimitiveOFS).Passed
	lt := snap.Outcome(domain.PrimitiveLT).Passed
	wc := snap.Outcome(domain.PrimitiveWC).Passed
	rq := snap.Outcome(domain.PrimitiveRQ).Passed
	base := vc && ofs && lt

	trans := Transition{Pool: snap.Pool, From: st.state, To: st.state}
	var sig *domain.DetectorSignal

	switch st.state {
	case domain.StateQuiet:
		if base {
			st.confirm++
			if st.confirm >= th.ConfirmTicks {
				st.state = domain.StateCoil
				st.confirm = 0
			}
		} else {
			st.confirm = 0
		}

	case domain.StateCoil:
		switch {
		case !base:
			st.state = domain.StateQuiet
		case wc:
			st.state = domain.StateArmed
			st.armedSinceMs = nowMs
		}

	case domain.StateArmed:
		switch {
		case !base:
			st.state = domain.StateQuiet
		case wc && rq && !gated(snap, th):
			trans.To = domain.StateEnter
			if nowMs < st.cooldownUntilMs {
				trans.Suppressed = true
			} else {
				sig = buildSignal(snap, th, nowMs)
				st.cooldownUntilMs = nowMs + th.Cooldown.Milliseconds()
			}
			// ENTER is a pulse, not a resting state.
			st.state = domain.StateQuiet
		case nowMs-st.armedSinceMs > th.ArmedWindow.Milliseconds():
			// Armed window elapsed without retail quiet confirming.
			// Checked after confirmation so an RQ pass on the boundary
			// tick still enters.
			st.state = domain.StateQuiet
		}
	}

	if trans.To != domain.StateEnter {
		trans.To = st.state
	}
	snap.State = trans.To
	return trans, sig
}

// gated reports whether the regime gate suppresses ARMED→ENTER.
func gated(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) bool {
	return th.RegimeGate && snap.RegimeCR > th.RegimeCRMax
}

// buildSignal assembles the actionable record: composite weighted score
// over the five primitives plus the per-primitive reasons.
func buildSignal(snap *domain.FeatureSnapshot, th *config.ThresholdConfig, nowMs int64) *domain.DetectorSignal {
	reasons := make(map[string]domain.Reason, len(domain.Primitives))
	var score, wsum float64
	for _, p := range domain.Primitives {
		out := snap.Outcome(p)
		w := th.Weights[p]
		score += w * out.Score
		wsum += w
		reasons[p] = domain.Reason{
			Passed:    out.Passed,
			Score:     out.Score,
			Threshold: thresholdFor(p, th),
		}
	}
	if wsum > 0 {
		score /= wsum
	}
	return &domain.DetectorSignal{
		TimestampMs: nowMs,
		Pool:        snap.Pool,
		Token:       snap.Token,
		SignalType:  domain.SignalTypeLong,
		Score:       score,
		Reasons:     reasons,
		State:       domain.StateEnter.String(),
	}
}

func thresholdFor(primitive string, th *config.ThresholdConfig) float64 {
	switch primitive {
	case domain.PrimitiveVC:
		return th.VCMax
	case domain.PrimitiveOFS:
		return th.OFSMax
	case domain.PrimitiveLT:
		return th.LTMaxQuote
	case domain.PrimitiveWC:
		return th.WCMin
	case domain.PrimitiveRQ:
		return th.RQMax
	default:
		return 0
	}
}

// StateFor returns the pool's current state, QUIET for unknown pools.
func (m *Machine) StateFor(pool string) domain.CoilState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.pools[pool]; ok {
		return st.state
	}
	return domain.StateQuiet
}

// CooldownUntil returns the pool's emission cooldown deadline in epoch
// milliseconds, zero when none is active.
func (m *Machine) CooldownUntil(pool string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.pools[pool]; ok {
		return st.cooldownUntilMs
	}
	return 0
}

// Evict drops a pool's state. Cooldown is forgotten with it, so idle
// eviction must outlast the cooldown duration.
func (m *Machine) Evict(pool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, pool)
}

func (m *Machine) slotFor(pool string) *poolState {
	m.mu.RLock()
	st, ok := m.pools[pool]
	m.mu.RUnlock()
	if ok {
		return st
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.pools[pool]; ok {
		return st
	}
	st = &poolState{state: domain.StateQuiet}
	m.pools[pool] = st
	return st
}
