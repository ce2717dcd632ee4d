package domain

// Primitive name constants, used as keys in snapshots and signal reasons.
const (
	PrimitiveVC  = "vc"  // volatility compression
	PrimitiveOFS = "ofs" // order-flow stillness
	PrimitiveLT  = "lt"  // liquidity thinness
	PrimitiveWC  = "wc"  // wallet convergence
	PrimitiveRQ  = "rq"  // retail quiet
)

// Primitives lists all five primitive names in evaluation order.
var Primitives = []string{PrimitiveVC, PrimitiveOFS, PrimitiveLT, PrimitiveWC, PrimitiveRQ}

// Outcome is one primitive's evaluation result.
// A primitive with insufficient data fails with score 0 instead of
// producing an error.
type Outcome struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"` // in [0,1]
}

// FeatureSnapshot is the complete output of one recompute tick for one
// pool: every primitive input, the five outcomes, and regime context.
// Latest-only per pool; corresponds to features_latest table.
type FeatureSnapshot struct {
	Pool        string
	Token       string
	TimestampMs int64
	Obs         int // swaps folded since pool creation

	// Volatility compression inputs
	ATRPct15m       float64
	ATRPct24h       float64
	VCRatio         float64 // ATRPct15m / ATRPct24h
	IntertradeSlope float64 // slope of inter-trade-time EMA over 15m
	ReturnStdev15m  float64
	ReturnStdevPrev float64 // previous tick's 15m return stdev

	// Order-flow stillness inputs
	CVD            float64
	CVDSlope60m    float64
	SwapSizeCV15m  float64
	Alternation15m float64 // fraction of sign flips between consecutive swaps

	// Liquidity thinness inputs
	XReserve         float64
	YReserve         float64
	FeeBps           int
	Depth1PctQuote   float64 // quote notional to move price 1%
	DepthContinuity  float64
	TopHolderLPShare float64

	// Wallet convergence inputs
	ArrivalsPerMin float64
	GiniDelta      float64
	CohortJaccard  float64
	WhaleShare     float64

	// Retail quiet inputs
	WatcherSlope float64
	SwapsPerMinZ float64

	// Primitive outcomes keyed by Primitives names
	Outcomes map[string]Outcome

	// Cross-sectional regime context
	RegimeCR float64 // compression z vs venue family
	RegimeTD float64 // trend-drift z vs venue family
	RegimeCP float64 // churn-persistence z vs venue family

	// State after the tick's state-machine pass
	State CoilState
}

// Outcome returns the named primitive's outcome, failing closed when the
// snapshot has no entry for it.
func (s *FeatureSnapshot) Outcome(primitive string) Outcome {
	if s.Outcomes == nil {
		return Outcome{}
	}
	return s.Outcomes[primitive]
}
