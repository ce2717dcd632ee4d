package domain

// SignalTypeLong is the only signal type emitted; the detector is
// long-only for memecoins.
const SignalTypeLong = "long"

// Reason is one primitive's contribution to an emitted signal, the
// human-auditable justification stored alongside it.
type Reason struct {
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

// DetectorSignal is the actionable record emitted on a qualifying
// ENTER transition. Append-only; corresponds to detector_signal table.
type DetectorSignal struct {
	TimestampMs int64             `json:"ts"`
	Pool        string            `json:"pool"`
	Token       string            `json:"token"`
	SignalType  string            `json:"signal_type"`
	Score       float64           `json:"score"`
	Reasons     map[string]Reason `json:"reasons"`
	State       string            `json:"state"`
}
