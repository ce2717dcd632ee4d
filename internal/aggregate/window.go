package aggregate

import (
	"math"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/stats"
)

// Window horizons in milliseconds.
const (
	window15m = 15 * 60 * 1000
	window30m = 30 * 60 * 1000
	window60m = 60 * 60 * 1000
	window24h = 24 * 60 * 60 * 1000
)

// Params are the fold-time knobs the aggregator needs from
// configuration. Kept as plain values so this package stays a leaf.
type Params struct {
	QSMin          float64 // qualified-wallet score floor
	DustNotional   float64 // watcher-proxy first-buy ceiling
	CohortWindowMs int64   // qualified cohort retention
	CohortMaxSize  int     // qualified cohort size cap
	GiniTopN       int     // buyers considered for the Gini delta
}

// DefaultParams mirror the documented configuration defaults.
func DefaultParams() Params {
	return Params{
		QSMin:          0.55,
		DustNotional:   0.1,
		CohortWindowMs: window30m,
		CohortMaxSize:  512,
		GiniTopN:       20,
	}
}

// PoolWindowState is the per-pool rolling state, owned exclusively by
// the Aggregator. Mutated only by fold; evaluators read it through the
// FeatureSnapshot built at tick time.
type PoolWindowState struct {
	pool  string
	token string

	createdMs   int64
	lastEventMs int64
	lastSlot    int64
	obs         int

	// Volatility accumulators
	trEMA15    *DecayEMA
	trEMA24    *DecayEMA
	priceEMA15 *DecayEMA
	priceEMA24 *DecayEMA
	lastPrice  float64
	returns    *series // log returns, 15m

	// Order flow
	cvd       float64
	cvdHist   *series // (ts, cvd), 60m
	interEMA  *DecayEMA
	interHist *series // (ts, inter-trade EMA value), 15m
	sizes     *series // quote notionals, 15m
	flips     *series // 1 on sign flip vs previous swap, else 0; 15m
	lastSign  int
	swapTimes *series // one entry per swap, 60m

	// Liquidity
	xReserve   float64
	yReserve   float64
	feeBps     int
	lpTopShare float64 // negative = unknown

	// Authority flags (latest observed)
	feeSwitch  bool
	taxFlag    bool
	mintAuth   bool
	freezeAuth bool

	// Wallet cohorts
	seen         map[string]struct{}
	cohort       *Cohort
	priorWinners map[string]struct{}
	inflows      *inflowWindow

	// Watcher proxy
	watcherCount int
	watcherHist  *series // (ts, count), 30m

	// Prior tick values for delta features
	prevGini     float64
	giniSeeded   bool
	prevRetStdev float64
	stdevSeeded  bool

	giniTopN int
}

// newPoolWindowState creates state on the first event for a pool.
func newPoolWindowState(pool, token string, tsMs int64, p Params, priorWinners map[string]struct{}) *PoolWindowState {
	return &PoolWindowState{
		pool:         pool,
		token:        token,
		createdMs:    tsMs,
		lastPrice:    0,
		lpTopShare:   -1,
		trEMA15:      NewDecayEMA(window15m),
		trEMA24:      NewDecayEMA(window24h),
		priceEMA15:   NewDecayEMA(window15m),
		priceEMA24:   NewDecayEMA(window24h),
		returns:      newSeries(window15m),
		cvdHist:      newSeries(window60m),
		interEMA:     NewDecayEMA(window15m),
		interHist:    newSeries(window15m),
		sizes:        newSeries(window15m),
		flips:        newSeries(window15m),
		swapTimes:    newSeries(window60m),
		seen:         make(map[string]struct{}),
		cohort:       NewCohort(p.CohortWindowMs, p.CohortMaxSize),
		priorWinners: priorWinners,
		inflows:      newInflowWindow(p.CohortWindowMs),
		watcherHist:  newSeries(window30m),
		giniTopN:     p.GiniTopN,
	}
}

// Pool returns the pool address this state belongs to.
func (s *PoolWindowState) Pool() string { return s.pool }

// CVD returns the cumulative volume delta since pool creation.
func (s *PoolWindowState) CVD() float64 { return s.cvd }

// LastSlot returns the highest folded slot.
func (s *PoolWindowState) LastSlot() int64 { return s.lastSlot }

func (s *PoolWindowState) foldSwap(ev *domain.SwapEvent, p Params) {
	ts := ev.TimestampMs

	// Price-derived accumulators. True range per swap against the prior
	// close; ATR% = EMA(tr) / EMA(price) per horizon.
	if ev.Price > 0 {
		if s.lastPrice > 0 {
			tr := math.Abs(ev.Price - s.lastPrice)
			s.trEMA15.Update(ts, tr)
			s.trEMA24.Update(ts, tr)
			s.returns.append(ts, math.Log(ev.Price/s.lastPrice))
		}
		s.priceEMA15.Update(ts, ev.Price)
		s.priceEMA24.Update(ts, ev.Price)
		s.lastPrice = ev.Price
	}

	// CVD: signed quote notional, +buy / -sell, never reset.
	sign := 0
	switch ev.Side {
	case domain.SideBuy:
		sign = 1
	case domain.SideSell:
		sign = -1
	}
	s.cvd += float64(sign) * ev.QuoteAmt
	s.cvdHist.append(ts, s.cvd)

	// Inter-trade gap EMA and its trail for slope.
	if s.lastEventMs > 0 && ts >= s.lastEventMs {
		s.interEMA.Update(ts, float64(ts-s.lastEventMs)/1000.0)
		s.interHist.append(ts, s.interEMA.Value())
	}

	s.sizes.append(ts, ev.QuoteAmt)
	if s.lastSign != 0 && sign != 0 {
		flip := 0.0
		if sign != s.lastSign {
			flip = 1.0
		}
		s.flips.append(ts, flip)
	}
	if sign != 0 {
		s.lastSign = sign
	}
	s.swapTimes.append(ts, 1)

	// First swap from a new wallet: qualify it, and feed the watcher
	// proxy on dust-sized first buys from real (on-curve) wallets.
	if ev.Taker != "" {
		if _, known := s.seen[ev.Taker]; !known {
			s.seen[ev.Taker] = struct{}{}
			if ev.TakerStats != nil {
				if qs := ev.TakerStats.QualityScore(); qs >= p.QSMin {
					s.cohort.Add(ev.Taker, ts, qs)
				}
			}
			if sign > 0 && ev.QuoteAmt < p.DustNotional && domain.IsOnCurve(ev.Taker) {
				s.watcherCount++
				s.watcherHist.append(ts, float64(s.watcherCount))
			}
		}
		s.inflows.add(ts, ev.Taker, float64(sign)*ev.QuoteAmt)
	}

	if s.token == "" {
		s.token = ev.Token
	}
	s.obs++
	s.lastEventMs = ts
	s.lastSlot = ev.Slot
}

func (s *PoolWindowState) foldLiquidity(ev *domain.LiquidityEvent) {
	// Raw reserves only; depth is derived on demand at tick time so it
	// can never go stale relative to the reserves.
	if ev.XReserve > 0 && ev.YReserve > 0 {
		s.xReserve = ev.XReserve
		s.yReserve = ev.YReserve
	}
	if ev.FeeBps > 0 {
		s.feeBps = ev.FeeBps
	}
	if ev.TopHolderLPShare >= 0 {
		s.lpTopShare = ev.TopHolderLPShare
	}
	s.lastEventMs = ev.TimestampMs
	s.lastSlot = ev.Slot
}

func (s *PoolWindowState) foldAuthority(ev *domain.AuthorityEvent) {
	s.feeSwitch = ev.FeeSwitch
	s.taxFlag = ev.TaxFlag
	s.mintAuth = ev.MintAuth
	s.freezeAuth = ev.FreezeAuth
	s.lastEventMs = ev.TimestampMs
	s.lastSlot = ev.Slot
}

// Snapshot derives all primitive inputs from the rolling state at
// nowMs. It also rolls the prior-tick reference values (return stdev,
// Gini) forward, so it must be called exactly once per tick per pool.
func (s *PoolWindowState) Snapshot(nowMs int64) *domain.FeatureSnapshot {
	snap := &domain.FeatureSnapshot{
		Pool:        s.pool,
		Token:       s.token,
		TimestampMs: nowMs,
		Obs:         s.obs,
		Outcomes:    make(map[string]domain.Outcome, len(domain.Primitives)),
	}

	// ATR% per horizon.
	if s.trEMA15.Seeded() && s.priceEMA15.Value() > 0 {
		snap.ATRPct15m = s.trEMA15.Value() / s.priceEMA15.Value() * 100
	}
	if s.trEMA24.Seeded() && s.priceEMA24.Value() > 0 {
		snap.ATRPct24h = s.trEMA24.Value() / s.priceEMA24.Value() * 100
	}
	if snap.ATRPct24h > 0 {
		snap.VCRatio = snap.ATRPct15m / snap.ATRPct24h
	}

	s.returns.evict(nowMs)
	snap.ReturnStdev15m = stats.Stddev(s.returns.values())
	if s.stdevSeeded {
		snap.ReturnStdevPrev = s.prevRetStdev
	} else {
		snap.ReturnStdevPrev = snap.ReturnStdev15m
	}
	s.prevRetStdev = snap.ReturnStdev15m
	s.stdevSeeded = true

	s.interHist.evict(nowMs)
	snap.IntertradeSlope = s.interHist.slopePerMin()

	// Order flow.
	snap.CVD = s.cvd
	s.cvdHist.evict(nowMs)
	snap.CVDSlope60m = s.cvdHist.slopePerMin()
	s.sizes.evict(nowMs)
	sizeVals := s.sizes.values()
	if m := stats.Mean(sizeVals); m > 0 {
		snap.SwapSizeCV15m = stats.Stddev(sizeVals) / m
	}
	s.flips.evict(nowMs)
	snap.Alternation15m = stats.Mean(s.flips.values())

	// Liquidity raw inputs; depth itself is filled in by the evaluator
	// layer from these reserves.
	snap.XReserve = s.xReserve
	snap.YReserve = s.yReserve
	snap.FeeBps = s.feeBps
	snap.TopHolderLPShare = s.lpTopShare

	// Wallet convergence. Arrivals rate is measured over the trailing
	// 15 minutes even though the cohort retains members longer.
	s.cohort.Evict(nowMs)
	snap.ArrivalsPerMin = float64(s.cohort.ArrivalsSince(nowMs-window15m)) / 15.0
	s.inflows.evict(nowMs)
	gini := s.inflows.giniTopN(s.giniTopN)
	if s.giniSeeded {
		snap.GiniDelta = gini - s.prevGini
	}
	s.prevGini = gini
	s.giniSeeded = true
	snap.CohortJaccard = stats.Jaccard(s.cohort.Set(), s.priorWinners)
	snap.WhaleShare = s.inflows.whaleShare()

	// Retail quiet.
	s.watcherHist.evict(nowMs)
	snap.WatcherSlope = s.watcherHist.slopePerMin()
	s.swapTimes.evict(nowMs)
	snap.SwapsPerMinZ = s.swapsPerMinZ(nowMs)

	return snap
}

// swapsPerMinZ z-scores the current 15-minute swap rate against the
// trailing hour's per-minute counts.
func (s *PoolWindowState) swapsPerMinZ(nowMs int64) float64 {
	if s.swapTimes.len() == 0 {
		return 0
	}
	current := float64(s.swapTimes.countSince(nowMs-window15m)) / 15.0

	// Per-minute buckets over the trailing hour.
	buckets := make([]float64, 60)
	for _, p := range s.swapTimes.pts {
		age := nowMs - p.tsMs
		if age < 0 || age >= window60m {
			continue
		}
		buckets[age/60_000]++
	}
	return stats.ZScore(current, buckets)
}
