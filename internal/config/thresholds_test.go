package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultThresholds_Valid(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds must validate: %v", err)
	}
}

func TestLoadThresholds_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("vc_max: 0.02\nlt_max_quote: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCF_VC_MAX", "0.01")

	got, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("LoadThresholds: %v", err)
	}
	if got.VCMax != 0.01 {
		t.Errorf("env must win over file: VCMax = %v, want 0.01", got.VCMax)
	}
	if got.LTMaxQuote != 9000 {
		t.Errorf("file must win over default: LTMaxQuote = %v, want 9000", got.LTMaxQuote)
	}
	if got.WCMin != 0.6 {
		t.Errorf("default must survive: WCMin = %v, want 0.6", got.WCMin)
	}
}

func TestLoadThresholds_MalformedEnv(t *testing.T) {
	t.Setenv("SCF_OFS_MAX", "not-a-number")
	if _, err := LoadThresholds(""); err == nil {
		t.Fatal("expected error for malformed SCF_OFS_MAX")
	}
}

func TestLoadThresholds_DedupSeconds(t *testing.T) {
	t.Setenv("SCF_DETECTOR_DEDUP_SEC", "120")
	got, err := LoadThresholds("")
	if err != nil {
		t.Fatalf("LoadThresholds: %v", err)
	}
	if got.Cooldown != 120*time.Second {
		t.Errorf("Cooldown = %v, want 120s", got.Cooldown)
	}
}

func TestWatcher_KeepsLastKnownGoodOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("vc_max: 0.02\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().VCMax != 0.02 {
		t.Fatalf("initial VCMax = %v, want 0.02", w.Current().VCMax)
	}

	// Break the file, then reload: the old config must stay active.
	if err := os.WriteFile(path, []byte("vc_max: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.Reload()
	if w.Current().VCMax != 0.02 {
		t.Errorf("after bad reload VCMax = %v, want last-known-good 0.02", w.Current().VCMax)
	}

	// Fix the file: reload must pick it up.
	if err := os.WriteFile(path, []byte("vc_max: 0.03\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.Reload()
	if w.Current().VCMax != 0.03 {
		t.Errorf("after good reload VCMax = %v, want 0.03", w.Current().VCMax)
	}
}

func TestWatcher_MalformedInitialIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	if err := os.WriteFile(path, []byte("confirm_ticks: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWatcher(path, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed initial thresholds")
	}
}
