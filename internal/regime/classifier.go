// Package regime classifies the cross-sectional market regime. Each
// tick it z-scores every active pool against its venue family on
// volatility, flow drift, and churn, producing a per-pool context
// vector the state machine can gate on. A classification is computed
// once per tick and read immutably afterwards.
package regime

import (
	"math"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/stats"
)

// Vector is the per-pool regime context.
type Vector struct {
	// CR is the compression z-score: ATR%15m relative to the venue
	// family. Negative means quieter than peers.
	CR float64
	// TD is the trend-drift z-score: |CVD slope| relative to peers.
	TD float64
	// CP is the churn-persistence z-score: swap-size dispersion and
	// depth-ladder unevenness relative to peers.
	CP float64
}

// FamilyFunc maps a pool to its venue family. Pools are only compared
// within a family.
type FamilyFunc func(pool string) string

// Options configures a Classifier.
type Options struct {
	// FamilyOf defaults to a single family covering every pool.
	FamilyOf FamilyFunc
	// MinFamily is the minimum family size for a meaningful
	// cross-section; smaller families get zero vectors.
	MinFamily int
}

// Classifier computes regime snapshots. It is stateless; all inputs
// arrive with the tick.
type Classifier struct {
	familyOf  FamilyFunc
	minFamily int
}

func NewClassifier(opts Options) *Classifier {
	familyOf := opts.FamilyOf
	if familyOf == nil {
		familyOf = func(string) string { return "default" }
	}
	minFamily := opts.MinFamily
	if minFamily < 2 {
		minFamily = 2
	}
	return &Classifier{familyOf: familyOf, minFamily: minFamily}
}

type familyAccum struct {
	atr, drift, churn, ladder []float64
}

// Classify builds the regime snapshot for one tick from every active
// pool's features. The result is immutable.
func (c *Classifier) Classify(snaps []*domain.FeatureSnapshot) *Snapshot {
	families := make(map[string]*familyAccum)
	for _, s := range snaps {
		fam := c.familyOf(s.Pool)
		acc := families[fam]
		if acc == nil {
			acc = &familyAccum{}
			families[fam] = acc
		}
		acc.atr = append(acc.atr, s.ATRPct15m)
		acc.drift = append(acc.drift, math.Abs(s.CVDSlope60m))
		acc.churn = append(acc.churn, s.SwapSizeCV15m)
		acc.ladder = append(acc.ladder, s.DepthContinuity)
	}

	type moments struct {
		atrMu, atrSd       float64
		driftMu, driftSd   float64
		churnMu, churnSd   float64
		ladderMu, ladderSd float64
		n                  int
	}
	byFamily := make(map[string]moments, len(families))
	for fam, acc := range families {
		byFamily[fam] = moments{
			atrMu: stats.Mean(acc.atr), atrSd: stats.Stddev(acc.atr),
			driftMu: stats.Mean(acc.drift), driftSd: stats.Stddev(acc.drift),
			churnMu: stats.Mean(acc.churn), churnSd: stats.Stddev(acc.churn),
			ladderMu: stats.Mean(acc.ladder), ladderSd: stats.Stddev(acc.ladder),
			n: len(acc.atr),
		}
	}

	vectors := make(map[string]Vector, len(snaps))
	for _, s := range snaps {
		m := byFamily[c.familyOf(s.Pool)]
		if m.n < c.minFamily {
			vectors[s.Pool] = Vector{}
			continue
		}
		zCV := z(s.SwapSizeCV15m, m.churnMu, m.churnSd)
		zLadder := z(s.DepthContinuity, m.ladderMu, m.ladderSd)
		vectors[s.Pool] = Vector{
			CR: z(s.ATRPct15m, m.atrMu, m.atrSd),
			TD: z(math.Abs(s.CVDSlope60m), m.driftMu, m.driftSd),
			// Uneven ladders count toward churn, so the continuity
			// z enters negated.
			CP: (zCV - zLadder) / 2,
		}
	}
	return &Snapshot{vectors: vectors}
}

func z(v, mu, sd float64) float64 {
	if sd <= 0 {
		return 0
	}
	return (v - mu) / sd
}

// Snapshot is one tick's regime classification. Written once by the
// classifier pass, then read concurrently.
type Snapshot struct {
	vectors map[string]Vector
}

// Vector returns the regime vector for pool, or the zero vector when
// the pool was not part of the classification.
func (s *Snapshot) Vector(pool string) Vector {
	if s == nil {
		return Vector{}
	}
	return s.vectors[pool]
}

// Attach copies the pool's regime vector onto its feature snapshot.
func (s *Snapshot) Attach(snap *domain.FeatureSnapshot) {
	v := s.Vector(snap.Pool)
	snap.RegimeCR = v.CR
	snap.RegimeTD = v.TD
	snap.RegimeCP = v.CP
}
