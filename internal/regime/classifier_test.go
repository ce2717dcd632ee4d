package regime

import (
	"math"
	"testing"

	"solana-coil-detector/internal/domain"
)

func snapFor(pool string, atr, slope, cv, cont float64) *domain.FeatureSnapshot {
	return &domain.FeatureSnapshot{
		Pool:            pool,
		ATRPct15m:       atr,
		CVDSlope60m:     slope,
		SwapSizeCV15m:   cv,
		DepthContinuity: cont,
	}
}

func TestClassify_CrossSection(t *testing.T) {
	c := NewClassifier(Options{})
	snaps := []*domain.FeatureSnapshot{
		snapFor("calm", 0.5, 0.0001, 0.3, 0.95),
		snapFor("mid", 1.0, 0.0005, 0.5, 0.90),
		snapFor("hot", 3.0, -0.0040, 1.2, 0.60),
	}
	rs := c.Classify(snaps)

	calm, hot := rs.Vector("calm"), rs.Vector("hot")
	if calm.CR >= 0 {
		t.Fatalf("calm pool CR = %.3f, want negative", calm.CR)
	}
	if hot.CR <= 0 {
		t.Fatalf("hot pool CR = %.3f, want positive", hot.CR)
	}
	// CVD slope enters by magnitude, so the negative drift still ranks
	// hottest.
	if hot.TD <= calm.TD {
		t.Fatalf("hot TD %.3f should exceed calm TD %.3f", hot.TD, calm.TD)
	}
	if hot.CP <= calm.CP {
		t.Fatalf("hot CP %.3f should exceed calm CP %.3f", hot.CP, calm.CP)
	}
}

func TestClassify_SmallFamilyZeroed(t *testing.T) {
	c := NewClassifier(Options{})
	rs := c.Classify([]*domain.FeatureSnapshot{snapFor("only", 2.0, 0.01, 1.0, 0.5)})
	if v := rs.Vector("only"); v != (Vector{}) {
		t.Fatalf("single-pool family should get zero vector, got %+v", v)
	}
}

func TestClassify_FamilyIsolation(t *testing.T) {
	c := NewClassifier(Options{
		FamilyOf: func(pool string) string { return pool[:1] },
	})
	// Family "a" has an outlier; family "b" is uniform.
	snaps := []*domain.FeatureSnapshot{
		snapFor("a1", 0.5, 0, 0.3, 0.9),
		snapFor("a2", 5.0, 0, 0.3, 0.9),
		snapFor("b1", 1.0, 0, 0.3, 0.9),
		snapFor("b2", 1.0, 0, 0.3, 0.9),
	}
	rs := c.Classify(snaps)
	if v := rs.Vector("b1"); v.CR != 0 {
		t.Fatalf("uniform family should z-score to 0, got %.3f", v.CR)
	}
	if v := rs.Vector("a2"); v.CR <= 0 {
		t.Fatalf("outlier in its own family should score positive, got %.3f", v.CR)
	}
}

func TestAttach(t *testing.T) {
	c := NewClassifier(Options{})
	snaps := []*domain.FeatureSnapshot{
		snapFor("a", 0.5, 0, 0.3, 0.9),
		snapFor("b", 2.5, 0, 0.9, 0.7),
	}
	rs := c.Classify(snaps)
	rs.Attach(snaps[0])
	if snaps[0].RegimeCR == 0 && snaps[0].RegimeCP == 0 {
		t.Fatal("attach left regime fields unset")
	}
	want := rs.Vector("a")
	if math.Abs(snaps[0].RegimeCR-want.CR) > 1e-12 {
		t.Fatalf("RegimeCR = %v, want %v", snaps[0].RegimeCR, want.CR)
	}

	// Unknown pools and nil snapshots degrade to zero vectors.
	var nilSnap *Snapshot
	if v := nilSnap.Vector("a"); v != (Vector{}) {
		t.Fatalf("nil snapshot vector = %+v, want zero", v)
	}
	if v := rs.Vector("missing"); v != (Vector{}) {
		t.Fatalf("unknown pool vector = %+v, want zero", v)
	}
}
