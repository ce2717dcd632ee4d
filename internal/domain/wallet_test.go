package domain

import (
	"math"
	"testing"
)

func TestQualityScore_Weights(t *testing.T) {
	w := &WalletStats{
		PriorProfitableExits: 1.0,
		Recency:              0.5,
		ExecutionQuality:     0.5,
		HoldingDiscipline:    0.5,
		CrossPoolConsistency: 0.5,
		BotLikelihood:        0.0,
	}
	// 0.28*1 + 0.18*0.5 + 0.18*0.5 + 0.14*0.5 + 0.12*0.5 = 0.59
	want := 0.59
	if got := w.QualityScore(); math.Abs(got-want) > 1e-9 {
		t.Errorf("QualityScore = %v, want %v", got, want)
	}
}

func TestQualityScore_Clipped(t *testing.T) {
	allOnes := &WalletStats{
		PriorProfitableExits: 1, Recency: 1, ExecutionQuality: 1,
		HoldingDiscipline: 1, CrossPoolConsistency: 1,
	}
	if got := allOnes.QualityScore(); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("QualityScore max = %v, want 0.9", got)
	}

	botOnly := &WalletStats{BotLikelihood: 1}
	if got := botOnly.QualityScore(); got != 0 {
		t.Errorf("QualityScore with only bot penalty = %v, want 0 (clipped)", got)
	}
}
