package domain

// WalletStats holds the behavioral sub-features used to score a wallet.
// All fields are normalized to [0,1] by the upstream wallet-profile
// service; this package only owns the weighting.
type WalletStats struct {
	PriorProfitableExits float64 // P
	Recency              float64 // R
	ExecutionQuality     float64 // E
	HoldingDiscipline    float64 // H
	CrossPoolConsistency float64 // C
	BotLikelihood        float64 // B, penalized
}

// QualityScore returns the wallet Quality Score:
//
//	QS = clip(0.28P + 0.18R + 0.18E + 0.14H + 0.12C - 0.10B, 0, 1)
//
// Wallets at or above the configured minimum join the qualified cohort.
func (w *WalletStats) QualityScore() float64 {
	qs := 0.28*w.PriorProfitableExits +
		0.18*w.Recency +
		0.18*w.ExecutionQuality +
		0.14*w.HoldingDiscipline +
		0.12*w.CrossPoolConsistency -
		0.10*w.BotLikelihood
	if qs < 0 {
		return 0
	}
	if qs > 1 {
		return 1
	}
	return qs
}
