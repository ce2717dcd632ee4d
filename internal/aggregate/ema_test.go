package aggregate

import (
	"math"
	"testing"
)

func TestDecayEMA_SeedsWithFirstSample(t *testing.T) {
	e := NewDecayEMA(window15m)
	if e.Seeded() {
		t.Fatal("fresh EMA must not be seeded")
	}
	e.Update(1000, 42)
	if !e.Seeded() || e.Value() != 42 {
		t.Errorf("after seed Value = %v, want 42", e.Value())
	}
}

func TestDecayEMA_ConvergesTowardConstant(t *testing.T) {
	e := NewDecayEMA(window15m)
	e.Update(0, 0)
	// Feed a constant 10 for two full windows; the EMA must close most
	// of the distance.
	for ts := int64(60_000); ts <= 2*window15m; ts += 60_000 {
		e.Update(ts, 10)
	}
	if e.Value() < 8.5 {
		t.Errorf("EMA = %v, want > 8.5 after two windows of 10s", e.Value())
	}
}

func TestDecayEMA_DecayMatchesGap(t *testing.T) {
	// A single update after exactly one tau moves the value by
	// 1 - 1/e of the distance.
	e := NewDecayEMA(window15m)
	e.Update(0, 0)
	e.Update(window15m, 1)
	want := 1 - math.Exp(-1)
	if math.Abs(e.Value()-want) > 1e-12 {
		t.Errorf("EMA = %v, want %v", e.Value(), want)
	}
}

func TestSeries_EvictsOutsideWindow(t *testing.T) {
	s := newSeries(window15m)
	s.append(0, 1)
	s.append(window15m/2, 2)
	s.append(window15m+60_000, 3) // pushes the first sample out
	if s.len() != 2 {
		t.Fatalf("len = %d, want 2", s.len())
	}
	vals := s.values()
	if vals[0] != 2 || vals[1] != 3 {
		t.Errorf("values = %v, want [2 3]", vals)
	}
}

func TestSeries_SlopePerMin(t *testing.T) {
	s := newSeries(window60m)
	// 1 unit per minute.
	for i := int64(0); i < 10; i++ {
		s.append(i*60_000, float64(i))
	}
	if got := s.slopePerMin(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("slopePerMin = %v, want 1", got)
	}
}
