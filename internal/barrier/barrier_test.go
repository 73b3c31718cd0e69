package barrier

import (
	"math"
	"testing"

	"github.com/nav-lambda/safety.report/internal/geom"
)

func testConfig() Config {
	return Config{SafetyMargin: 0.5, Alpha: 5.0, MinAlpha: 0.1, MaxAlpha: 20.0}
}

func mustVerifier(t *testing.T, cfg Config) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{SafetyMargin: 0, Alpha: 5, MinAlpha: 0.1, MaxAlpha: 20},
		{SafetyMargin: -1, Alpha: 5, MinAlpha: 0.1, MaxAlpha: 20},
		{SafetyMargin: 0.5, Alpha: 5, MinAlpha: 0, MaxAlpha: 20},
		{SafetyMargin: 0.5, Alpha: 5, MinAlpha: 10, MaxAlpha: 1},
	}
	for i, cfg := range cases {
		if _, err := NewVerifier(cfg); err == nil {
			t.Errorf("case %d: expected construction error", i)
		}
	}
}

func TestBarrierPositiveWithinMargin(t *testing.T) {
	v := mustVerifier(t, testConfig())

	// h = 1 − d²/m² is positive for every obstacle closer than the
	// safety margin and reaches its maximum of 1 at d = 0.
	obstacles := []geom.Vec3{
		{X: 0.1}, {Y: -0.3}, {X: 0.2, Y: 0.2},
	}
	rec := v.Evaluate(geom.Vec3{}, geom.Vec3{}, obstacles)
	if rec.Value <= 0 {
		t.Errorf("barrier value = %v, want > 0 with all obstacles inside the margin", rec.Value)
	}
	if rec.Value > 1 {
		t.Errorf("barrier value = %v, want <= 1", rec.Value)
	}
}

func TestBarrierCoincidentObstacle(t *testing.T) {
	v := mustVerifier(t, testConfig())

	// Coincident position: distSq = 0, so h = 1 exactly.
	rec := v.Evaluate(geom.Vec3{X: 2, Y: 3}, geom.Vec3{}, []geom.Vec3{{X: 2, Y: 3}})
	if rec.Value != 1 {
		t.Errorf("barrier value at coincident obstacle = %v, want exactly 1", rec.Value)
	}
}

func TestBarrierSignConvention(t *testing.T) {
	v := mustVerifier(t, testConfig())

	// h(x) = 1 − d²/m²: h > 0 within distance m of the obstacle centre
	// normalisation, crossing zero exactly at d = m.
	rec := v.Evaluate(geom.Vec3{}, geom.Vec3{}, []geom.Vec3{{X: 0.5}})
	if math.Abs(rec.Value) > 1e-12 {
		t.Errorf("h at d == margin = %v, want 0", rec.Value)
	}

	rec = v.Evaluate(geom.Vec3{}, geom.Vec3{}, []geom.Vec3{{X: 1.0}})
	if rec.Value >= 0 {
		t.Errorf("h at d = 2·margin = %v, want < 0", rec.Value)
	}
}

func TestVacuousCertificationWithNoObstacles(t *testing.T) {
	v := mustVerifier(t, testConfig())
	rec := v.Evaluate(geom.Vec3{X: 1}, geom.Vec3{X: 10}, nil)
	if !rec.Certified {
		t.Error("empty obstacle set must certify vacuously")
	}
	if !v.IsCertifiedSafe() {
		t.Error("IsCertifiedSafe() = false with no obstacles")
	}
	if rec.MinMargin != NoObstacleMargin {
		t.Errorf("MinMargin = %v, want NoObstacleMargin", rec.MinMargin)
	}
}

func TestSpecScenarioHeadOnApproach(t *testing.T) {
	// Robot at origin, one obstacle at distance 0.4, safetyMargin 0.5:
	// h = 1 − 0.16/0.25 = 0.36. Velocity 1 m/s directly toward the
	// obstacle gives ḣ = +3.2, which fails ḣ ≤ −5×0.36 = −1.8.
	v := mustVerifier(t, testConfig())

	obstacle := geom.Vec3{X: 0.4}
	toward := geom.Vec3{X: 1} // unit velocity toward the obstacle

	rec := v.Evaluate(geom.Vec3{}, toward, []geom.Vec3{obstacle})
	if math.Abs(rec.Value-0.36) > 1e-12 {
		t.Errorf("h = %v, want 0.36", rec.Value)
	}
	if math.Abs(rec.Derivative-3.2) > 1e-12 {
		t.Errorf("ḣ = %v, want 3.2", rec.Derivative)
	}
	if rec.Certified {
		t.Error("head-on approach must not certify (3.2 > -1.8)")
	}

	// Reversing the velocity makes ḣ = −3.2 ≤ −1.8: certified.
	rec = v.Evaluate(geom.Vec3{}, toward.Scale(-1), []geom.Vec3{obstacle})
	if rec.Certified != true {
		t.Errorf("retreat at 1 m/s should certify: ḣ=%v, bound=%v", rec.Derivative, -v.Alpha()*rec.Value)
	}
}

func TestAlphaMonotonicity(t *testing.T) {
	// Holding state fixed, certification only gets harder as alpha grows.
	obstacle := []geom.Vec3{{X: 0.4}}
	away := geom.Vec3{X: -1}

	prevCertified := true
	for _, alpha := range []float64{0.5, 2, 5, 8, 8.8, 9, 12, 20} {
		v := mustVerifier(t, Config{SafetyMargin: 0.5, Alpha: alpha, MinAlpha: 0.1, MaxAlpha: 20})
		rec := v.Evaluate(geom.Vec3{}, away, obstacle)
		if rec.Certified && !prevCertified {
			t.Fatalf("certification became easier at alpha=%v", alpha)
		}
		prevCertified = rec.Certified
	}
}

func TestBindingConstraintIsMinimum(t *testing.T) {
	v := mustVerifier(t, testConfig())

	// The far obstacle has the smaller h (more negative); it must be the
	// binding constraint even though the near one dominates the margin.
	rec := v.Evaluate(geom.Vec3{}, geom.Vec3{}, []geom.Vec3{{X: 0.1}, {X: 5}})
	wantH := 1 - 25/0.25 // h of the x=5 obstacle
	if math.Abs(rec.Value-wantH) > 1e-9 {
		t.Errorf("binding h = %v, want %v", rec.Value, wantH)
	}
	// MinMargin tracks the closest obstacle.
	wantMargin := 0.1 - 0.5
	if math.Abs(rec.MinMargin-wantMargin) > 1e-9 {
		t.Errorf("MinMargin = %v, want %v", rec.MinMargin, wantMargin)
	}
}

func TestUpdateSafetyAlphaClamps(t *testing.T) {
	v := mustVerifier(t, testConfig())

	if got := v.UpdateSafetyAlpha(100); got != 20 {
		t.Errorf("alpha clamped to %v, want 20", got)
	}
	if got := v.UpdateSafetyAlpha(0.0001); got != 0.1 {
		t.Errorf("alpha clamped to %v, want 0.1", got)
	}
	if got := v.UpdateSafetyAlpha(7.5); got != 7.5 {
		t.Errorf("alpha = %v, want 7.5", got)
	}
	if v.Alpha() != 7.5 {
		t.Errorf("Alpha() = %v, want 7.5", v.Alpha())
	}
}
