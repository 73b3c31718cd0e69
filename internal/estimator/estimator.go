// Package estimator implements the adaptive state estimator for the safety
// core. It fuses noisy absolute-position measurements with inertial velocity
// measurements into a filtered state with quantified uncertainty, and flags
// sensor integrity faults via a RAIM-style residual check.
package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/geom"
)

// Internal numerical stability constants — not user-tunable.
const (
	// maxNoiseScale caps the adaptive measurement-noise multiplier so
	// repeated large residuals cannot push the filter into ignoring the
	// sensor entirely.
	maxNoiseScale = 100.0
	// noiseScaleGrowth / noiseScaleDecay are the exponential adjustment
	// factors applied per cycle based on residual magnitude.
	noiseScaleGrowth = 1.2
	noiseScaleDecay  = 0.95
)

// Estimator is the capability interface consumed by downstream components.
// The cognitive scorer reads certainty and the fault flag; the barrier
// verifier reads the filtered position and velocity.
type Estimator interface {
	StateEstimate() (position, velocity geom.Vec3)
	Heading() float64
	Uncertainty() float64
	Certainty() float64
	FaultDetected() bool
}

// Config holds estimator tuning parameters.
type Config struct {
	ProcessNoise           float64 // Process noise spectral density (σ², dt-normalised)
	MeasurementNoise       float64 // Position measurement noise (σ²)
	AdaptiveDeviationBound float64 // Residual magnitude above which sensor trust is reduced (metres)
	NoiseScaleFloor        float64 // Lower bound for the adaptive noise multiplier
	RAIMResidualThreshold  float64 // Residual magnitude that trips the integrity fault (metres)
	FaultNoiseBoost        float64 // Process noise multiplier while a fault is active (dead-reckoning bias)
}

// ConfigFromTuning builds an estimator Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ProcessNoise:           cfg.GetProcessNoise(),
		MeasurementNoise:       cfg.GetMeasurementNoise(),
		AdaptiveDeviationBound: cfg.GetAdaptiveDeviationBound(),
		NoiseScaleFloor:        cfg.GetNoiseScaleFloor(),
		RAIMResidualThreshold:  cfg.GetRAIMResidualThreshold(),
		FaultNoiseBoost:        cfg.GetFaultNoiseBoost(),
	}
}

// AdaptiveEstimator is a Kalman-style filter over the 3D position with an
// adaptive measurement-noise scale and RAIM integrity monitoring. The
// covariance is a real 3×3 matrix; inversion failures are recovered locally
// by retaining the prior estimate and raising the fault flag — NaN never
// propagates to dependents.
type AdaptiveEstimator struct {
	cfg Config

	position geom.Vec3
	velocity geom.Vec3
	heading  float64

	cov *mat.Dense // 3×3 position covariance, owned exclusively

	noiseScale   float64 // adaptive multiplier on measurement noise
	processScale float64 // multiplier on process noise (boosted on fault)

	faultDetected bool
	initialized   bool
	updateCount   int
}

// New creates an AdaptiveEstimator with the given configuration.
func New(cfg Config) *AdaptiveEstimator {
	return &AdaptiveEstimator{
		cfg:          cfg,
		cov:          identityScaled(1.0),
		noiseScale:   1.0,
		processScale: 1.0,
	}
}

// identityScaled returns s·I as a 3×3 dense matrix.
func identityScaled(s float64) *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, s)
	}
	return m
}

// Update runs one predict/update cycle. gps is the absolute position
// measurement, imuVelocity the inertial velocity measurement, dt the elapsed
// time in seconds. It never returns an error: numerical degeneracy is
// recovered by retaining the prior estimate and raising the fault flag.
func (e *AdaptiveEstimator) Update(gps, imuVelocity geom.Vec3, dt float64) {
	if dt <= 0 || !gps.IsFinite() || !imuVelocity.IsFinite() {
		return
	}

	if !e.initialized {
		e.position = gps
		e.velocity = imuVelocity
		e.updateHeading()
		e.initialized = true
		e.updateCount++
		return
	}

	// Predict: constant velocity model.
	predicted := e.position.Add(e.velocity.Scale(dt))

	covPred := mat.NewDense(3, 3, nil)
	covPred.Copy(e.cov)
	q := e.cfg.ProcessNoise * e.processScale * dt
	for i := 0; i < 3; i++ {
		covPred.Set(i, i, covPred.At(i, i)+q)
	}

	// Innovation and RAIM residual check against the prediction.
	residual := gps.Sub(predicted)
	deviation := residual.Norm()

	if deviation > e.cfg.RAIMResidualThreshold {
		// Integrity fault: distrust the position fix and lean on
		// dead-reckoning by widening process noise. The measurement is
		// still fused below (with the raised noise scale) so the filter
		// can re-converge once the sensor recovers.
		e.faultDetected = true
		e.processScale = e.cfg.FaultNoiseBoost
	} else {
		e.faultDetected = false
		e.processScale = 1.0
	}

	// Adaptive measurement-noise tuning: large residuals mean the sensor
	// disagrees with the model, so trust the model more; small residuals
	// restore sensor trust. Exponential adjustment, bounded both ways.
	if deviation > e.cfg.AdaptiveDeviationBound {
		e.noiseScale *= noiseScaleGrowth
	} else {
		e.noiseScale *= noiseScaleDecay
	}
	e.noiseScale = geom.Clamp(e.noiseScale, e.cfg.NoiseScaleFloor, maxNoiseScale)

	// Innovation covariance S = P' + R.
	r := e.cfg.MeasurementNoise * e.noiseScale
	s := mat.NewDense(3, 3, nil)
	s.Copy(covPred)
	for i := 0; i < 3; i++ {
		s.Set(i, i, s.At(i, i)+r)
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		// Near-singular innovation covariance. Keep the prior estimate
		// rather than propagating NaN, and surface the fault.
		e.faultDetected = true
		return
	}

	// Kalman gain K = P' · S⁻¹.
	var gain mat.Dense
	gain.Mul(covPred, &sInv)

	// State correction: x = x' + K·(z − x').
	rv := mat.NewVecDense(3, []float64{residual.X, residual.Y, residual.Z})
	var corr mat.VecDense
	corr.MulVec(&gain, rv)
	updated := predicted.Add(geom.Vec3{X: corr.AtVec(0), Y: corr.AtVec(1), Z: corr.AtVec(2)})

	// Covariance update: P = (I − K)·P'.
	iMinusK := identityScaled(1.0)
	iMinusK.Sub(iMinusK, &gain)
	var newCov mat.Dense
	newCov.Mul(iMinusK, covPred)

	if !updated.IsFinite() || !isFiniteMat(&newCov) {
		e.faultDetected = true
		return
	}

	e.position = updated
	e.cov.Copy(&newCov)

	// Velocity fusion: blend the inertial measurement using the mean
	// position gain as a scalar blend factor, so velocity trust tracks
	// position trust.
	blend := geom.Clamp01(meanDiagonal(&gain))
	e.velocity = e.velocity.Add(imuVelocity.Sub(e.velocity).Scale(blend))
	e.updateHeading()
	e.updateCount++
}

// updateHeading derives the planar heading from the velocity vector.
// Below a small speed the previous heading is retained (atan2 of noise
// produces meaningless spinning).
func (e *AdaptiveEstimator) updateHeading() {
	const minSpeedForHeading = 0.05 // m/s
	if math.Hypot(e.velocity.X, e.velocity.Y) > minSpeedForHeading {
		e.heading = math.Atan2(e.velocity.Y, e.velocity.X)
	}
}

func isFiniteMat(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func meanDiagonal(m *mat.Dense) float64 {
	return (m.At(0, 0) + m.At(1, 1) + m.At(2, 2)) / 3
}

// StateEstimate returns the filtered position and velocity.
func (e *AdaptiveEstimator) StateEstimate() (geom.Vec3, geom.Vec3) {
	return e.position, e.velocity
}

// Heading returns the planar heading in radians.
func (e *AdaptiveEstimator) Heading() float64 {
	return e.heading
}

// Uncertainty returns the covariance trace divided by the state dimension.
// Always ≥ 0.
func (e *AdaptiveEstimator) Uncertainty() float64 {
	return meanDiagonal(e.cov)
}

// Certainty maps uncertainty to (0, 1]: 1/(1+uncertainty).
func (e *AdaptiveEstimator) Certainty() float64 {
	return 1.0 / (1.0 + e.Uncertainty())
}

// FaultDetected reports whether the most recent update tripped the RAIM
// residual check or a degenerate covariance inversion.
func (e *AdaptiveEstimator) FaultDetected() bool {
	return e.faultDetected
}

// UpdateCount returns the number of measurement cycles processed.
func (e *AdaptiveEstimator) UpdateCount() int {
	return e.updateCount
}

// NoiseScale exposes the adaptive measurement-noise multiplier for
// diagnostics and tests.
func (e *AdaptiveEstimator) NoiseScale() float64 {
	return e.noiseScale
}
