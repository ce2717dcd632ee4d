package aggregate

import "solana-coil-detector/internal/stats"

// cohortEntry is one qualified wallet's membership record.
type cohortEntry struct {
	tsMs int64
	qs   float64
}

// Cohort is the bounded set of recent qualified-wallet arrivals for one
// pool. Members age out after the cohort window; when the size cap is
// hit the oldest member is dropped first.
type Cohort struct {
	windowMs int64
	maxSize  int
	members  map[string]cohortEntry
}

// NewCohort creates a cohort with the given window and size cap.
func NewCohort(windowMs int64, maxSize int) *Cohort {
	return &Cohort{
		windowMs: windowMs,
		maxSize:  maxSize,
		members:  make(map[string]cohortEntry),
	}
}

// Add records a qualified wallet arrival.
func (c *Cohort) Add(wallet string, tsMs int64, qs float64) {
	c.evictOld(tsMs)
	if len(c.members) >= c.maxSize {
		c.evictOldest()
	}
	c.members[wallet] = cohortEntry{tsMs: tsMs, qs: qs}
}

// Evict drops members older than the window relative to nowMs.
func (c *Cohort) Evict(nowMs int64) { c.evictOld(nowMs) }

func (c *Cohort) evictOld(nowMs int64) {
	cutoff := nowMs - c.windowMs
	for w, e := range c.members {
		if e.tsMs < cutoff {
			delete(c.members, w)
		}
	}
}

func (c *Cohort) evictOldest() {
	var oldest string
	var oldestTs int64 = -1
	for w, e := range c.members {
		if oldestTs == -1 || e.tsMs < oldestTs {
			oldest, oldestTs = w, e.tsMs
		}
	}
	if oldestTs != -1 {
		delete(c.members, oldest)
	}
}

// Set returns the current membership as a set for overlap computation.
func (c *Cohort) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(c.members))
	for w := range c.members {
		out[w] = struct{}{}
	}
	return out
}

// ArrivalsSince counts members that joined at or after cutoffMs.
func (c *Cohort) ArrivalsSince(cutoffMs int64) int {
	n := 0
	for _, e := range c.members {
		if e.tsMs >= cutoffMs {
			n++
		}
	}
	return n
}

// Len returns current membership size.
func (c *Cohort) Len() int { return len(c.members) }

// inflowEvent is one signed quote flow attributed to a buyer wallet.
type inflowEvent struct {
	tsMs   int64
	wallet string
	quote  float64 // +buy, -sell
}

// inflowWindow tracks per-wallet net inflow over a trailing window.
type inflowWindow struct {
	windowMs int64
	events   []inflowEvent
}

func newInflowWindow(windowMs int64) *inflowWindow {
	return &inflowWindow{windowMs: windowMs}
}

func (iw *inflowWindow) add(tsMs int64, wallet string, quote float64) {
	iw.events = append(iw.events, inflowEvent{tsMs: tsMs, wallet: wallet, quote: quote})
	iw.evict(tsMs)
}

func (iw *inflowWindow) evict(nowMs int64) {
	cutoff := nowMs - iw.windowMs
	i := 0
	for i < len(iw.events) && iw.events[i].tsMs < cutoff {
		i++
	}
	if i > 0 {
		iw.events = append(iw.events[:0], iw.events[i:]...)
	}
}

// netByWallet returns net inflow per wallet in the window.
func (iw *inflowWindow) netByWallet() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range iw.events {
		out[e.wallet] += e.quote
	}
	return out
}

// giniTopN returns the Gini coefficient of net inflow across the top-n
// buyers in the window.
func (iw *inflowWindow) giniTopN(n int) float64 {
	net := iw.netByWallet()
	values := make([]float64, 0, len(net))
	for _, v := range net {
		values = append(values, v)
	}
	return stats.Gini(stats.TopN(values, n))
}

// whaleShare returns the largest single buyer's share of total positive
// net inflow, 0 when there is no positive inflow.
func (iw *inflowWindow) whaleShare() float64 {
	net := iw.netByWallet()
	var total, max float64
	for _, v := range net {
		if v <= 0 {
			continue
		}
		total += v
		if v > max {
			max = v
		}
	}
	if total == 0 {
		return 0
	}
	return max / total
}
