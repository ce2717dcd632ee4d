// Package stats provides the pure numeric helpers shared by the
// aggregator and the primitive evaluators. All functions are
// deterministic and allocation-light; none of them touch the clock.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Stddev returns the sample standard deviation (n-1 denominator),
// 0 when fewer than 2 samples.
func Stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := Mean(xs)
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// ZScore returns (x - mean) / stddev over the reference sample,
// 0 when the sample has no spread.
func ZScore(x float64, ref []float64) float64 {
	sd := Stddev(ref)
	if sd == 0 {
		return 0
	}
	return (x - Mean(ref)) / sd
}

// Slope returns the least-squares slope of ys against xs.
// Returns 0 when fewer than 2 points or when xs has no spread.
func Slope(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	meanX := Mean(xs)
	meanY := Mean(ys)
	var num, den float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		num += dx * (ys[i] - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Gini returns the Gini coefficient of the values in [0,1]:
// 0 = perfectly even, →1 = one value dominates. Negative inputs are
// clamped to 0 (net outflows carry no concentration weight).
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		sorted[i] = v
	}
	sort.Float64s(sorted)

	var cumWeighted, total float64
	for i, v := range sorted {
		cumWeighted += float64(i+1) * v
		total += v
	}
	if total == 0 {
		return 0
	}
	nf := float64(n)
	return (2*cumWeighted)/(nf*total) - (nf+1)/nf
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two string sets,
// 0 when both are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Clip bounds x to [lo, hi].
func Clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// TopN returns the n largest values, descending. The input is not
// modified.
func TopN(values []float64, n int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
