package primitive

import (
	"math"
	"testing"
)

func TestDepth_ClosedForm(t *testing.T) {
	// Raydium-style pool: 1000 base / 50000 quote, 30 bps fee.
	got := Depth(1000, 50000, 30, 0.01)
	want := 50000 * (math.Sqrt(1.01) - 1) / (1 - 0.0030)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Depth = %.12f, want %.12f", got, want)
	}
}

func TestDepth_FeeRaisesNotional(t *testing.T) {
	free := Depth(1000, 50000, 0, 0.01)
	taxed := Depth(1000, 50000, 30, 0.01)
	if taxed <= free {
		t.Fatalf("fee-adjusted depth %.6f should exceed fee-free %.6f", taxed, free)
	}
}

func TestDepth_Degenerate(t *testing.T) {
	cases := []struct {
		name    string
		x, y    float64
		feeBps  int
		move    float64
	}{
		{"zero base reserve", 0, 50000, 30, 0.01},
		{"zero quote reserve", 1000, 0, 30, 0.01},
		{"negative reserve", -1, 50000, 30, 0.01},
		{"zero move", 1000, 50000, 30, 0},
		{"fee eats everything", 1000, 50000, 10_000, 0.01},
	}
	for _, tc := range cases {
		if got := Depth(tc.x, tc.y, tc.feeBps, tc.move); got != 0 {
			t.Errorf("%s: Depth = %v, want 0", tc.name, got)
		}
	}
}

func TestDepthLadder_Monotonic(t *testing.T) {
	ladder := DepthLadder(1000, 50000, 30)
	if len(ladder) != len(depthLadderSteps) {
		t.Fatalf("ladder has %d rungs, want %d", len(ladder), len(depthLadderSteps))
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i] <= ladder[i-1] {
			t.Fatalf("ladder not increasing at rung %d: %v", i, ladder)
		}
	}
}

func TestDepthContinuity_ConstantProduct(t *testing.T) {
	ladder := DepthLadder(1000, 50000, 30)
	got := DepthContinuity(ladder)
	if got < 0.99 || got > 1 {
		t.Fatalf("continuity of a smooth curve = %.4f, want near 1", got)
	}
}

func TestDepthContinuity_Cliff(t *testing.T) {
	ladder := DepthLadder(1000, 50000, 30)
	smooth := DepthContinuity(ladder)
	ladder[len(ladder)-1] /= 5
	cliff := DepthContinuity(ladder)
	if cliff >= smooth {
		t.Fatalf("cliff continuity %.4f should be below smooth %.4f", cliff, smooth)
	}
}

func TestDepthContinuity_BadInput(t *testing.T) {
	if got := DepthContinuity(nil); got != 0 {
		t.Fatalf("nil ladder = %v, want 0", got)
	}
	if got := DepthContinuity([]float64{1, 2}); got != 0 {
		t.Fatalf("short ladder = %v, want 0", got)
	}
	if got := DepthContinuity([]float64{1, 0, 2, 3}); got != 0 {
		t.Fatalf("zero rung = %v, want 0", got)
	}
}
