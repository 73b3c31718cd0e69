package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the safety core.
// The schema matches the /api/safety/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
// All fields are optional; the Get* methods supply defaults.
type TuningConfig struct {
	// Estimator params
	ProcessNoise           *float64 `json:"process_noise,omitempty"`
	MeasurementNoise       *float64 `json:"measurement_noise,omitempty"`
	AdaptiveDeviationBound *float64 `json:"adaptive_deviation_bound,omitempty"`
	NoiseScaleFloor        *float64 `json:"noise_scale_floor,omitempty"`
	RAIMResidualThreshold  *float64 `json:"raim_residual_threshold,omitempty"`
	FaultNoiseBoost        *float64 `json:"fault_noise_boost,omitempty"`

	// Barrier verifier params
	SafetyMargin *float64 `json:"safety_margin,omitempty"`
	Alpha        *float64 `json:"alpha,omitempty"`
	MinAlpha     *float64 `json:"min_alpha,omitempty"`
	MaxAlpha     *float64 `json:"max_alpha,omitempty"`

	// Cognitive rigor params
	PScoreThreshold      *float64 `json:"p_score_threshold,omitempty"`
	MaxGoalDistance      *float64 `json:"max_goal_distance,omitempty"`
	DefaultIntent        *float64 `json:"default_intent,omitempty"`
	DefaultProximity     *float64 `json:"default_proximity,omitempty"`
	FatigueDecayRate     *float64 `json:"fatigue_decay_rate,omitempty"`
	FatigueRecoveryRate  *float64 `json:"fatigue_recovery_rate,omitempty"`
	FatigueBreachLevel   *float64 `json:"fatigue_breach_level,omitempty"`
	CertaintyBreachLevel *float64 `json:"certainty_breach_level,omitempty"`

	// Certification compiler params
	WindowCapacity        *int     `json:"window_capacity,omitempty"`
	ControlVariateBeta    *float64 `json:"control_variate_beta,omitempty"`
	ControlVariateScale   *float64 `json:"control_variate_scale,omitempty"`
	HistoricalMeanDefault *float64 `json:"historical_mean_default,omitempty"`
	MinWindowSamples      *int     `json:"min_window_samples,omitempty"`

	// Pipeline params
	MaxRateHz *float64 `json:"max_rate_hz,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
// Use LoadTuningConfig to load actual values from a defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their defaults,
// so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. A malformed
// safety margin or alpha range is a hard configuration error: the core
// must refuse to start rather than certify against a degenerate unsafe set.
func (c *TuningConfig) Validate() error {
	if c.SafetyMargin != nil && *c.SafetyMargin <= 0 {
		return fmt.Errorf("safety_margin must be positive, got %f", *c.SafetyMargin)
	}
	if c.MinAlpha != nil && *c.MinAlpha <= 0 {
		return fmt.Errorf("min_alpha must be positive, got %f", *c.MinAlpha)
	}
	if c.MinAlpha != nil && c.MaxAlpha != nil && *c.MinAlpha > *c.MaxAlpha {
		return fmt.Errorf("min_alpha %f exceeds max_alpha %f", *c.MinAlpha, *c.MaxAlpha)
	}
	if c.WindowCapacity != nil && *c.WindowCapacity < 0 {
		return fmt.Errorf("window_capacity must be non-negative, got %d", *c.WindowCapacity)
	}
	if c.ControlVariateBeta != nil && (*c.ControlVariateBeta < 0 || *c.ControlVariateBeta > 1) {
		return fmt.Errorf("control_variate_beta must be in [0,1], got %f", *c.ControlVariateBeta)
	}
	if c.FatigueDecayRate != nil && *c.FatigueDecayRate < 0 {
		return fmt.Errorf("fatigue_decay_rate must be non-negative, got %f", *c.FatigueDecayRate)
	}
	if c.FatigueRecoveryRate != nil && *c.FatigueRecoveryRate < 0 {
		return fmt.Errorf("fatigue_recovery_rate must be non-negative, got %f", *c.FatigueRecoveryRate)
	}
	if c.MaxGoalDistance != nil && *c.MaxGoalDistance <= 0 {
		return fmt.Errorf("max_goal_distance must be positive, got %f", *c.MaxGoalDistance)
	}
	if c.MaxRateHz != nil && *c.MaxRateHz < 0 {
		return fmt.Errorf("max_rate_hz must be non-negative, got %f", *c.MaxRateHz)
	}
	return nil
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 0.1
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.3
	}
	return *c.MeasurementNoise
}

// GetAdaptiveDeviationBound returns the adaptive_deviation_bound value or the default.
func (c *TuningConfig) GetAdaptiveDeviationBound() float64 {
	if c.AdaptiveDeviationBound == nil {
		return 1.0
	}
	return *c.AdaptiveDeviationBound
}

// GetNoiseScaleFloor returns the noise_scale_floor value or the default.
func (c *TuningConfig) GetNoiseScaleFloor() float64 {
	if c.NoiseScaleFloor == nil {
		return 0.01
	}
	return *c.NoiseScaleFloor
}

// GetRAIMResidualThreshold returns the raim_residual_threshold value or the default.
func (c *TuningConfig) GetRAIMResidualThreshold() float64 {
	if c.RAIMResidualThreshold == nil {
		return 3.0
	}
	return *c.RAIMResidualThreshold
}

// GetFaultNoiseBoost returns the fault_noise_boost value or the default.
func (c *TuningConfig) GetFaultNoiseBoost() float64 {
	if c.FaultNoiseBoost == nil {
		return 4.0
	}
	return *c.FaultNoiseBoost
}

// GetSafetyMargin returns the safety_margin value or the default.
func (c *TuningConfig) GetSafetyMargin() float64 {
	if c.SafetyMargin == nil {
		return 0.5
	}
	return *c.SafetyMargin
}

// GetAlpha returns the alpha value or the default.
func (c *TuningConfig) GetAlpha() float64 {
	if c.Alpha == nil {
		return 5.0
	}
	return *c.Alpha
}

// GetMinAlpha returns the min_alpha value or the default.
func (c *TuningConfig) GetMinAlpha() float64 {
	if c.MinAlpha == nil {
		return 0.1
	}
	return *c.MinAlpha
}

// GetMaxAlpha returns the max_alpha value or the default.
func (c *TuningConfig) GetMaxAlpha() float64 {
	if c.MaxAlpha == nil {
		return 20.0
	}
	return *c.MaxAlpha
}

// GetPScoreThreshold returns the p_score_threshold value or the default.
func (c *TuningConfig) GetPScoreThreshold() float64 {
	if c.PScoreThreshold == nil {
		return 50.0
	}
	return *c.PScoreThreshold
}

// GetMaxGoalDistance returns the max_goal_distance value or the default.
func (c *TuningConfig) GetMaxGoalDistance() float64 {
	if c.MaxGoalDistance == nil {
		return 10.0
	}
	return *c.MaxGoalDistance
}

// GetDefaultIntent returns the default_intent value or the default.
func (c *TuningConfig) GetDefaultIntent() float64 {
	if c.DefaultIntent == nil {
		return 0.8
	}
	return *c.DefaultIntent
}

// GetDefaultProximity returns the default_proximity value or the default.
func (c *TuningConfig) GetDefaultProximity() float64 {
	if c.DefaultProximity == nil {
		return 0.5
	}
	return *c.DefaultProximity
}

// GetFatigueDecayRate returns the fatigue_decay_rate value or the default.
func (c *TuningConfig) GetFatigueDecayRate() float64 {
	if c.FatigueDecayRate == nil {
		return 0.05
	}
	return *c.FatigueDecayRate
}

// GetFatigueRecoveryRate returns the fatigue_recovery_rate value or the default.
func (c *TuningConfig) GetFatigueRecoveryRate() float64 {
	if c.FatigueRecoveryRate == nil {
		return 0.02
	}
	return *c.FatigueRecoveryRate
}

// GetFatigueBreachLevel returns the fatigue_breach_level value or the default.
func (c *TuningConfig) GetFatigueBreachLevel() float64 {
	if c.FatigueBreachLevel == nil {
		return 0.3
	}
	return *c.FatigueBreachLevel
}

// GetCertaintyBreachLevel returns the certainty_breach_level value or the default.
func (c *TuningConfig) GetCertaintyBreachLevel() float64 {
	if c.CertaintyBreachLevel == nil {
		return 0.5
	}
	return *c.CertaintyBreachLevel
}

// GetWindowCapacity returns the window_capacity value or the default.
func (c *TuningConfig) GetWindowCapacity() int {
	if c.WindowCapacity == nil {
		return 100
	}
	return *c.WindowCapacity
}

// GetControlVariateBeta returns the control_variate_beta value or the default.
func (c *TuningConfig) GetControlVariateBeta() float64 {
	if c.ControlVariateBeta == nil {
		return 0.5
	}
	return *c.ControlVariateBeta
}

// GetControlVariateScale returns the control_variate_scale value or the default.
func (c *TuningConfig) GetControlVariateScale() float64 {
	if c.ControlVariateScale == nil {
		return 10.0
	}
	return *c.ControlVariateScale
}

// GetHistoricalMeanDefault returns the historical_mean_default value or the default.
func (c *TuningConfig) GetHistoricalMeanDefault() float64 {
	if c.HistoricalMeanDefault == nil {
		return 50.0
	}
	return *c.HistoricalMeanDefault
}

// GetMinWindowSamples returns the min_window_samples value or the default.
func (c *TuningConfig) GetMinWindowSamples() int {
	if c.MinWindowSamples == nil {
		return 2
	}
	return *c.MinWindowSamples
}

// GetMaxRateHz returns the max_rate_hz value or the default.
// Zero means no rate limit (process every tick).
func (c *TuningConfig) GetMaxRateHz() float64 {
	if c.MaxRateHz == nil {
		return 0
	}
	return *c.MaxRateHz
}
