// Package barrier implements the Control Barrier Function verifier. Each
// cycle it computes the barrier value h(x) against every known obstacle,
// picks the binding (minimum-h) constraint, and certifies safety via the
// CBF derivative condition. The verifier only reports state; actuation
// decisions belong to its dependents.
package barrier

import (
	"fmt"

	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/geom"
)

// Record is the immutable per-cycle verification result.
type Record struct {
	// Value is the barrier function h(x) = 1 − d²/margin² of the binding
	// obstacle. Positive within the safety margin, peaking at 1 when
	// coincident, negative beyond it.
	Value float64 `json:"barrier_value"`
	// Derivative is ḣ(x) = ∇h · v for the binding obstacle.
	Derivative float64 `json:"barrier_derivative"`
	// Certified is true iff ḣ ≤ −α·h and h ≥ 0, or vacuously with no
	// obstacles present.
	Certified bool `json:"certified"`
	// MinMargin is the smallest (distance − safetyMargin) across
	// obstacles; +Inf conceptually when no obstacles, reported as
	// NoObstacleMargin.
	MinMargin float64 `json:"min_margin"`
	// ObstacleCount is the number of obstacles evaluated this cycle.
	ObstacleCount int `json:"obstacle_count"`
}

// NoObstacleMargin is the margin reported when the obstacle set is empty.
// Finite so the value stays representable in JSON and SQL.
const NoObstacleMargin = 1e9

// Config holds barrier verifier parameters.
type Config struct {
	SafetyMargin float64 // Unsafe ball radius (metres); must be > 0
	Alpha        float64 // Class-K strictness gain
	MinAlpha     float64 // Lower clamp for runtime alpha updates
	MaxAlpha     float64 // Upper clamp for runtime alpha updates
}

// ConfigFromTuning builds a barrier Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SafetyMargin: cfg.GetSafetyMargin(),
		Alpha:        cfg.GetAlpha(),
		MinAlpha:     cfg.GetMinAlpha(),
		MaxAlpha:     cfg.GetMaxAlpha(),
	}
}

// Verifier evaluates the CBF condition against a fresh obstacle set each
// cycle. It retains no obstacle identity across cycles.
type Verifier struct {
	cfg  Config
	last Record
}

// NewVerifier creates a Verifier. A non-positive safety margin is an
// unrecoverable configuration error and fails fast.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.SafetyMargin <= 0 {
		return nil, fmt.Errorf("safety margin must be positive, got %f", cfg.SafetyMargin)
	}
	if cfg.MinAlpha <= 0 || cfg.MinAlpha > cfg.MaxAlpha {
		return nil, fmt.Errorf("invalid alpha range [%f, %f]", cfg.MinAlpha, cfg.MaxAlpha)
	}
	cfg.Alpha = geom.Clamp(cfg.Alpha, cfg.MinAlpha, cfg.MaxAlpha)
	return &Verifier{
		cfg: cfg,
		// Vacuously certified until the first evaluation.
		last: Record{Certified: true, Value: 1, MinMargin: NoObstacleMargin},
	}, nil
}

// Evaluate computes the per-cycle barrier record for the given state and
// obstacle set. The obstacle slice is read once and not retained.
//
// For one obstacle: h(x) = 1 − |x − o|²/margin², ∇h = −2(x − o)/margin²,
// ḣ = ∇h · v. The binding constraint is the minimum h across obstacles —
// the tightest constraint, not an average.
func (v *Verifier) Evaluate(position, velocity geom.Vec3, obstacles []geom.Vec3) Record {
	if len(obstacles) == 0 {
		// Vacuous truth: nothing to collide with.
		v.last = Record{Certified: true, Value: 1, MinMargin: NoObstacleMargin}
		return v.last
	}

	marginSq := v.cfg.SafetyMargin * v.cfg.SafetyMargin

	rec := Record{ObstacleCount: len(obstacles), MinMargin: NoObstacleMargin}
	first := true
	for _, obs := range obstacles {
		delta := position.Sub(obs)
		h := 1 - delta.NormSquared()/marginSq
		grad := delta.Scale(-2 / marginSq)
		hDot := grad.Dot(velocity)

		if first || h < rec.Value {
			rec.Value = h
			rec.Derivative = hDot
			first = false
		}

		if m := delta.Norm() - v.cfg.SafetyMargin; m < rec.MinMargin {
			rec.MinMargin = m
		}
	}

	rec.Certified = rec.Value >= 0 && rec.Derivative <= -v.cfg.Alpha*rec.Value
	v.last = rec
	return rec
}

// IsCertifiedSafe reports the certification outcome of the latest cycle.
func (v *Verifier) IsCertifiedSafe() bool {
	return v.last.Certified
}

// BarrierValue returns h(x) of the binding obstacle from the latest cycle.
func (v *Verifier) BarrierValue() float64 {
	return v.last.Value
}

// BarrierDerivative returns ḣ(x) of the binding obstacle from the latest cycle.
func (v *Verifier) BarrierDerivative() float64 {
	return v.last.Derivative
}

// LastRecord returns the latest barrier record.
func (v *Verifier) LastRecord() Record {
	return v.last
}

// Alpha returns the current strictness gain.
func (v *Verifier) Alpha() float64 {
	return v.cfg.Alpha
}

// UpdateSafetyAlpha sets the strictness gain, clamped to the configured
// [MinAlpha, MaxAlpha] range, and returns the applied value.
func (v *Verifier) UpdateSafetyAlpha(newAlpha float64) float64 {
	v.cfg.Alpha = geom.Clamp(newAlpha, v.cfg.MinAlpha, v.cfg.MaxAlpha)
	return v.cfg.Alpha
}
