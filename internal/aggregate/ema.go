package aggregate

import "math"

// DecayEMA is an exponential moving average over irregularly spaced
// samples. The decay depends only on event timestamps, never wall
// clock, so replaying the same event sequence reproduces the same
// trajectory exactly.
type DecayEMA struct {
	tauMs  float64
	value  float64
	lastMs int64
	seeded bool
}

// NewDecayEMA creates an EMA whose influence horizon matches the given
// window in milliseconds (tau = window).
func NewDecayEMA(windowMs int64) *DecayEMA {
	return &DecayEMA{tauMs: float64(windowMs)}
}

// Update folds a sample at tsMs into the average.
func (e *DecayEMA) Update(tsMs int64, x float64) {
	if !e.seeded {
		e.value = x
		e.lastMs = tsMs
		e.seeded = true
		return
	}
	dt := float64(tsMs - e.lastMs)
	if dt < 0 {
		dt = 0
	}
	alpha := 1 - math.Exp(-dt/e.tauMs)
	e.value += alpha * (x - e.value)
	e.lastMs = tsMs
}

// Value returns the current average, 0 before the first sample.
func (e *DecayEMA) Value() float64 { return e.value }

// Seeded reports whether at least one sample has been folded.
func (e *DecayEMA) Seeded() bool { return e.seeded }
