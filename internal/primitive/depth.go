package primitive

import "math"

// depthLadderSteps are the fractional price moves evaluated for the
// depth continuity ladder.
var depthLadderSteps = []float64{0.005, 0.01, 0.02, 0.05}

// Depth returns the quote notional required to move the pool price up
// by the fraction move, solving the constant-product invariant with the
// swap fee applied on input.
//
// With reserves (x base, y quote) the spot price is p = y/x = y²/k.
// To raise price by (1+r), the quote reserve must grow to y·√(1+r), so
// the effective input is y(√(1+r)−1) and the gross notional divides
// out the fee: Δy = y(√(1+r)−1)/(1−fee).
func Depth(x, y float64, feeBps int, move float64) float64 {
	if x <= 0 || y <= 0 || move <= 0 {
		return 0
	}
	fee := float64(feeBps) / 10_000.0
	if fee >= 1 {
		return 0
	}
	return y * (math.Sqrt(1+move) - 1) / (1 - fee)
}

// DepthLadder returns depths for each ladder step.
func DepthLadder(x, y float64, feeBps int) []float64 {
	out := make([]float64, len(depthLadderSteps))
	for i, step := range depthLadderSteps {
		out[i] = Depth(x, y, feeBps, step)
	}
	return out
}

// DepthContinuity takes the ladder depths, normalizes each to depth
// per unit of price move, and returns the mean min/max ratio of
// consecutive rungs. A smooth constant-product curve scores near 1; a
// cliff (e.g. concentrated liquidity about to run out) scores low.
func DepthContinuity(depths []float64) float64 {
	if len(depths) != len(depthLadderSteps) {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(depths); i++ {
		lo := depths[i] / depthLadderSteps[i]
		hi := depths[i+1] / depthLadderSteps[i+1]
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi == 0 {
			return 0
		}
		sum += lo / hi
	}
	return sum / float64(len(depths)-1)
}
