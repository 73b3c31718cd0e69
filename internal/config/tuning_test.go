package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if got := cfg.GetSafetyMargin(); got != 0.5 {
		t.Errorf("GetSafetyMargin = %v, want 0.5", got)
	}
	if got := cfg.GetAlpha(); got != 5.0 {
		t.Errorf("GetAlpha = %v, want 5.0", got)
	}
	if got := cfg.GetWindowCapacity(); got != 100 {
		t.Errorf("GetWindowCapacity = %v, want 100", got)
	}
	if got := cfg.GetHistoricalMeanDefault(); got != 50.0 {
		t.Errorf("GetHistoricalMeanDefault = %v, want 50.0", got)
	}
	if got := cfg.GetDefaultIntent(); got != 0.8 {
		t.Errorf("GetDefaultIntent = %v, want 0.8", got)
	}
	if got := cfg.GetDefaultProximity(); got != 0.5 {
		t.Errorf("GetDefaultProximity = %v, want 0.5", got)
	}
}

func TestLoadTuningConfigPartialOverride(t *testing.T) {
	path := writeConfig(t, `{"safety_margin": 1.25, "window_capacity": 10}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got := cfg.GetSafetyMargin(); got != 1.25 {
		t.Errorf("GetSafetyMargin = %v, want 1.25", got)
	}
	if got := cfg.GetWindowCapacity(); got != 10 {
		t.Errorf("GetWindowCapacity = %v, want 10", got)
	}
	// Untouched fields still fall back to defaults.
	if got := cfg.GetAlpha(); got != 5.0 {
		t.Errorf("GetAlpha = %v, want 5.0", got)
	}
}

func TestLoadTuningConfigRejectsMalformedSafetyMargin(t *testing.T) {
	for _, contents := range []string{
		`{"safety_margin": 0}`,
		`{"safety_margin": -0.5}`,
	} {
		path := writeConfig(t, contents)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Errorf("LoadTuningConfig(%s): expected validation error, got nil", contents)
		}
	}
}

func TestValidateAlphaRange(t *testing.T) {
	lo, hi := 5.0, 1.0
	cfg := &TuningConfig{MinAlpha: &lo, MaxAlpha: &hi}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for min_alpha > max_alpha")
	}
}

func TestValidateBetaRange(t *testing.T) {
	bad := 1.5
	cfg := &TuningConfig{ControlVariateBeta: &bad}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for control_variate_beta > 1")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetSafetyMargin() <= 0 {
		t.Fatalf("default safety margin invalid: %f", cfg.GetSafetyMargin())
	}
	if cfg.GetMinAlpha() > cfg.GetMaxAlpha() {
		t.Fatalf("default alpha range invalid: [%f, %f]", cfg.GetMinAlpha(), cfg.GetMaxAlpha())
	}
}
