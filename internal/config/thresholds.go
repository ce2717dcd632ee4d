package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"solana-coil-detector/internal/domain"
)

// ThresholdConfig is the immutable threshold set passed into evaluators
// and the state machine. Reload builds a fresh instance; a config value
// is never mutated after construction.
type ThresholdConfig struct {
	// Volatility compression
	VCMax float64 `yaml:"vc_max"` // max ATR%15m / ATR%24h ratio

	// Order-flow stillness
	OFSMax         float64 `yaml:"ofs_max"` // max |CVD slope over 60m|
	SwapSizeCVMax  float64 `yaml:"swap_size_cv_max"`
	AlternationMin float64 `yaml:"alternation_min"`

	// Liquidity thinness
	LTMaxQuote         float64 `yaml:"lt_max_quote"` // max 1% depth notional
	DepthContinuityMin float64 `yaml:"depth_continuity_min"`
	LPTopShareMax      float64 `yaml:"lp_top_share_max"`

	// Wallet convergence
	WCMin         float64 `yaml:"wc_min"` // min composite score
	ArrivalsMin   float64 `yaml:"arrivals_min"`
	GiniDeltaMax  float64 `yaml:"gini_delta_max"` // must be <= this (negative = broadening)
	JaccardMin    float64 `yaml:"jaccard_min"`
	WhaleShareMax float64 `yaml:"whale_share_max"`

	// Retail quiet
	RQMax float64 `yaml:"rq_max"` // max swaps-per-minute z-score

	// Wallet cohort
	QSMin        float64 `yaml:"qs_min"`        // qualified-wallet score floor
	DustNotional float64 `yaml:"dust_notional"` // first-buys below this feed the watcher proxy

	// State machine
	ConfirmTicks int           `yaml:"confirm_ticks"`
	ArmedWindow  time.Duration `yaml:"armed_window"`
	Cooldown     time.Duration `yaml:"cooldown"`

	// Regime gate for ARMED→ENTER; disabled unless RegimeGate is set.
	RegimeGate  bool    `yaml:"regime_gate"`
	RegimeCRMax float64 `yaml:"regime_cr_max"`

	// Composite score weights keyed by primitive name; equal by default.
	Weights map[string]float64 `yaml:"weights"`
}

// DefaultThresholds returns the documented default threshold set.
func DefaultThresholds() *ThresholdConfig {
	return &ThresholdConfig{
		VCMax:              0.015,
		OFSMax:             0.001,
		SwapSizeCVMax:      0.8,
		AlternationMin:     0.6,
		LTMaxQuote:         5000,
		DepthContinuityMin: 0.7,
		LPTopShareMax:      0.30,
		WCMin:              0.6,
		ArrivalsMin:        3,
		GiniDeltaMax:       -0.05,
		JaccardMin:         0.12,
		WhaleShareMax:      0.25,
		RQMax:              0.5,
		QSMin:              0.55,
		DustNotional:       0.1,
		ConfirmTicks:       3,
		ArmedWindow:        3 * time.Minute,
		Cooldown:           300 * time.Second,
		RegimeGate:         false,
		RegimeCRMax:        1.0,
		Weights:            equalWeights(),
	}
}

func equalWeights() map[string]float64 {
	w := make(map[string]float64, len(domain.Primitives))
	for _, p := range domain.Primitives {
		w[p] = 1.0 / float64(len(domain.Primitives))
	}
	return w
}

// Validate rejects threshold sets that cannot drive the detector.
func (t *ThresholdConfig) Validate() error {
	if t.VCMax <= 0 {
		return fmt.Errorf("%w: vc_max must be positive, got %v", ErrConfig, t.VCMax)
	}
	if t.OFSMax < 0 {
		return fmt.Errorf("%w: ofs_max must be non-negative, got %v", ErrConfig, t.OFSMax)
	}
	if t.LTMaxQuote <= 0 {
		return fmt.Errorf("%w: lt_max_quote must be positive, got %v", ErrConfig, t.LTMaxQuote)
	}
	if t.WCMin < 0 || t.WCMin > 1 {
		return fmt.Errorf("%w: wc_min must be in [0,1], got %v", ErrConfig, t.WCMin)
	}
	if t.QSMin < 0 || t.QSMin > 1 {
		return fmt.Errorf("%w: qs_min must be in [0,1], got %v", ErrConfig, t.QSMin)
	}
	if t.ConfirmTicks < 1 {
		return fmt.Errorf("%w: confirm_ticks must be >= 1, got %d", ErrConfig, t.ConfirmTicks)
	}
	if t.ArmedWindow <= 0 {
		return fmt.Errorf("%w: armed_window must be positive, got %v", ErrConfig, t.ArmedWindow)
	}
	if t.Cooldown <= 0 {
		return fmt.Errorf("%w: cooldown must be positive, got %v", ErrConfig, t.Cooldown)
	}
	var sum float64
	for _, p := range domain.Primitives {
		w, ok := t.Weights[p]
		if !ok {
			return fmt.Errorf("%w: missing weight for primitive %q", ErrConfig, p)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative weight for primitive %q", ErrConfig, p)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrConfig)
	}
	return nil
}

// LoadThresholds builds a threshold set from defaults, then the YAML file
// at path (if non-empty), then env overrides. Env wins over file.
func LoadThresholds(path string) (*ThresholdConfig, error) {
	t := DefaultThresholds()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read thresholds file: %v", ErrConfig, err)
		}
		if err := yaml.Unmarshal(data, t); err != nil {
			return nil, fmt.Errorf("%w: parse thresholds file %s: %v", ErrConfig, path, err)
		}
		if t.Weights == nil {
			t.Weights = equalWeights()
		}
	}

	if err := t.applyEnv(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// applyEnv overrides thresholds from SCF_* environment variables.
func (t *ThresholdConfig) applyEnv() error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"SCF_VC_MAX", &t.VCMax},
		{"SCF_OFS_MAX", &t.OFSMax},
		{"SCF_LT_MAX", &t.LTMaxQuote},
		{"SCF_WC_MIN", &t.WCMin},
		{"SCF_RQ_MAX", &t.RQMax},
		{"SCF_QS_MIN", &t.QSMin},
	}
	for _, f := range floats {
		raw := os.Getenv(f.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrConfig, f.key, raw)
		}
		*f.dst = v
	}

	if raw := os.Getenv("SCF_CONFIRM_TICKS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: SCF_CONFIRM_TICKS=%q is not an integer", ErrConfig, raw)
		}
		t.ConfirmTicks = v
	}
	if raw := os.Getenv("SCF_ARMED_WINDOW_SEC"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: SCF_ARMED_WINDOW_SEC=%q is not an integer", ErrConfig, raw)
		}
		t.ArmedWindow = time.Duration(v) * time.Second
	}
	if raw := os.Getenv("SCF_DETECTOR_DEDUP_SEC"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: SCF_DETECTOR_DEDUP_SEC=%q is not an integer", ErrConfig, raw)
		}
		t.Cooldown = time.Duration(v) * time.Second
	}
	if raw := os.Getenv("SCF_REGIME_GATE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: SCF_REGIME_GATE=%q is not a boolean", ErrConfig, raw)
		}
		t.RegimeGate = v
	}
	return nil
}
