// Package primitive evaluates the five coil primitives against a
// feature snapshot. Every evaluator is a pure function of the snapshot
// and the threshold set; missing data degrades to a failed outcome
// with score 0, never an error that aborts a tick.
package primitive

import (
	"math"

	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/stats"
)

// minObs is the minimum folded swaps before time-windowed statistics
// carry signal.
const minObs = 5

// failed is the degraded outcome for insufficient data.
var failed = domain.Outcome{}

// EvaluateAll derives the depth fields from the snapshot's raw
// reserves, evaluates all five primitives, and stores the outcomes on
// the snapshot keyed by primitive name.
func EvaluateAll(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) {
	ladder := DepthLadder(snap.XReserve, snap.YReserve, snap.FeeBps)
	snap.Depth1PctQuote = Depth(snap.XReserve, snap.YReserve, snap.FeeBps, 0.01)
	snap.DepthContinuity = DepthContinuity(ladder)

	snap.Outcomes[domain.PrimitiveVC] = EvaluateVC(snap, th)
	snap.Outcomes[domain.PrimitiveOFS] = EvaluateOFS(snap, th)
	snap.Outcomes[domain.PrimitiveLT] = EvaluateLT(snap, th)
	snap.Outcomes[domain.PrimitiveWC] = EvaluateWC(snap, th)
	snap.Outcomes[domain.PrimitiveRQ] = EvaluateRQ(snap, th)
}

// EvaluateVC scores volatility compression: short-horizon ATR% small
// relative to the long horizon, trades spacing out, and return stdev
// shrinking tick over tick.
func EvaluateVC(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) domain.Outcome {
	if snap.Obs < minObs || snap.ATRPct24h <= 0 {
		return failed
	}
	passed := snap.VCRatio <= th.VCMax &&
		snap.IntertradeSlope > 0 &&
		snap.ReturnStdev15m < snap.ReturnStdevPrev
	return domain.Outcome{
		Passed: passed,
		Score:  stats.Clip(1-snap.VCRatio/th.VCMax, 0, 1),
	}
}

// EvaluateOFS scores order-flow stillness: flat CVD, uniform swap
// sizes, and two-sided alternating flow.
func EvaluateOFS(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) domain.Outcome {
	if snap.Obs < minObs {
		return failed
	}
	slopeAbs := math.Abs(snap.CVDSlope60m)
	passed := slopeAbs <= th.OFSMax &&
		snap.SwapSizeCV15m <= th.SwapSizeCVMax &&
		snap.Alternation15m >= th.AlternationMin

	slopeScore := 0.0
	if th.OFSMax > 0 {
		slopeScore = stats.Clip(1-slopeAbs/th.OFSMax, 0, 1)
	}
	cvScore := stats.Clip(1-snap.SwapSizeCV15m/th.SwapSizeCVMax, 0, 1)
	altScore := stats.Clip(snap.Alternation15m/th.AlternationMin, 0, 1)
	return domain.Outcome{
		Passed: passed,
		Score:  (slopeScore + cvScore + altScore) / 3,
	}
}

// EvaluateLT scores liquidity thinness from depth computed on demand
// off the current reserves. Unknown LP concentration counts as missing
// data and fails the primitive.
func EvaluateLT(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) domain.Outcome {
	if snap.XReserve <= 0 || snap.YReserve <= 0 || snap.TopHolderLPShare < 0 {
		return failed
	}
	passed := snap.Depth1PctQuote <= th.LTMaxQuote &&
		snap.DepthContinuity >= th.DepthContinuityMin &&
		snap.TopHolderLPShare <= th.LPTopShareMax

	depthScore := stats.Clip(1-snap.Depth1PctQuote/th.LTMaxQuote, 0, 1)
	contScore := stats.Clip(snap.DepthContinuity, 0, 1)
	return domain.Outcome{
		Passed: passed,
		Score:  0.6*depthScore + 0.4*contScore,
	}
}

// EvaluateWC scores wallet convergence: qualified wallets arriving,
// inflow broadening across distinct buyers, and overlap with the
// prior-winners cohort, without a dominating whale.
func EvaluateWC(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) domain.Outcome {
	score := 0.45*math.Min(1, snap.ArrivalsPerMin/5) +
		0.25*math.Min(1, -snap.GiniDelta/0.08) +
		0.30*math.Min(1, snap.CohortJaccard/0.2)
	score = stats.Clip(score, 0, 1)

	passed := snap.ArrivalsPerMin >= th.ArrivalsMin &&
		snap.GiniDelta <= th.GiniDeltaMax &&
		snap.CohortJaccard >= th.JaccardMin &&
		snap.WhaleShare <= th.WhaleShareMax &&
		score >= th.WCMin
	return domain.Outcome{Passed: passed, Score: score}
}

// EvaluateRQ scores retail quiet: watcher interest rising while trade
// flow stays at or below its recent norm.
func EvaluateRQ(snap *domain.FeatureSnapshot, th *config.ThresholdConfig) domain.Outcome {
	if snap.Obs < minObs {
		return failed
	}
	passed := snap.WatcherSlope > 0 && snap.SwapsPerMinZ <= th.RQMax

	watchScore := stats.Clip(snap.WatcherSlope, 0, 1)
	quietScore := stats.Clip(1-snap.SwapsPerMinZ/math.Max(th.RQMax, 1e-9), 0, 1)
	return domain.Outcome{
		Passed: passed,
		Score:  (watchScore + quietScore) / 2,
	}
}
