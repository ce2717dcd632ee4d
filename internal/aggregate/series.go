package aggregate

import "solana-coil-detector/internal/stats"

// point is one timestamped sample in a trailing window.
type point struct {
	tsMs int64
	v    float64
}

// series is a trailing time window of samples. Entries older than the
// window are evicted on every append, keeping memory bounded by event
// rate times window length.
type series struct {
	windowMs int64
	pts      []point
}

func newSeries(windowMs int64) *series {
	return &series{windowMs: windowMs}
}

// append adds a sample and evicts entries older than the window
// relative to the newest timestamp.
func (s *series) append(tsMs int64, v float64) {
	s.pts = append(s.pts, point{tsMs: tsMs, v: v})
	s.evict(tsMs)
}

// evict drops entries older than the window relative to nowMs.
func (s *series) evict(nowMs int64) {
	cutoff := nowMs - s.windowMs
	i := 0
	for i < len(s.pts) && s.pts[i].tsMs < cutoff {
		i++
	}
	if i > 0 {
		s.pts = append(s.pts[:0], s.pts[i:]...)
	}
}

func (s *series) len() int { return len(s.pts) }

// values returns the sample values in chronological order.
func (s *series) values() []float64 {
	out := make([]float64, len(s.pts))
	for i, p := range s.pts {
		out[i] = p.v
	}
	return out
}

// slopePerMin returns the least-squares slope of the samples in units
// per minute, 0 with fewer than 2 samples.
func (s *series) slopePerMin() float64 {
	n := len(s.pts)
	if n < 2 {
		return 0
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	base := s.pts[0].tsMs
	for i, p := range s.pts {
		xs[i] = float64(p.tsMs-base) / 60_000.0
		ys[i] = p.v
	}
	return stats.Slope(xs, ys)
}

// countSince returns how many samples are at or after cutoffMs.
func (s *series) countSince(cutoffMs int64) int {
	n := 0
	for i := len(s.pts) - 1; i >= 0; i-- {
		if s.pts[i].tsMs < cutoffMs {
			break
		}
		n++
	}
	return n
}
