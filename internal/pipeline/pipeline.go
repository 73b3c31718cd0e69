// Package pipeline drives one safety evaluation cycle: estimator, barrier
// verifier, cognitive scorer, then certification compiler, strictly in that
// order. Each component owns its state exclusively; the pipeline is the
// only writer and runs single-threaded, one tick at a time.
package pipeline

import (
	"time"

	"github.com/nav-lambda/safety.report/internal/barrier"
	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/estimator"
	"github.com/nav-lambda/safety.report/internal/geom"
	"github.com/nav-lambda/safety.report/internal/monitoring"
	"github.com/nav-lambda/safety.report/internal/rigor"
	"github.com/nav-lambda/safety.report/internal/timeutil"
)

// CycleInput carries the external signals for one control tick.
type CycleInput struct {
	// GPSPosition is the absolute position measurement.
	GPSPosition geom.Vec3 `json:"gps_position"`
	// IMUVelocity is the inertial velocity measurement.
	IMUVelocity geom.Vec3 `json:"imu_velocity"`
	// Obstacles are the current obstacle positions; the slice is read
	// once per tick and not retained.
	Obstacles []geom.Vec3 `json:"obstacles"`
	// GoalPosition is the assigned navigation goal, nil when none.
	GoalPosition *geom.Vec3 `json:"goal_position,omitempty"`
	// ModelIntentConfidence is the planner's confidence in [0,1], nil
	// when no planner is connected.
	ModelIntentConfidence *float64 `json:"model_intent,omitempty"`
	// FatigueTrigger holds the consciousness decay active.
	FatigueTrigger bool `json:"fatigue_trigger"`
	// Dt is the elapsed time since the previous tick, in seconds.
	Dt float64 `json:"dt"`
}

// CycleOutput is the result of one evaluation cycle.
type CycleOutput struct {
	// Processed is false when the tick was dropped by the rate gate; all
	// other fields then repeat the previous cycle's values.
	Processed bool `json:"processed"`

	Certified         bool    `json:"certified"`
	BarrierValue      float64 `json:"barrier_value"`
	BarrierDerivative float64 `json:"barrier_derivative"`

	PScore    float64      `json:"p_score"`
	SubScores rigor.Record `json:"sub_scores"`

	Sim2ValEstimate float64 `json:"sim2val_estimate"`
	Sigma           float64 `json:"sigma"`

	EstimatedPosition geom.Vec3 `json:"estimated_position"`
	EstimatedVelocity geom.Vec3 `json:"estimated_velocity"`
	FaultDetected     bool      `json:"fault_detected"`

	// CommandedVelocity is the estimated velocity passed through to the
	// controller, zeroed while the failure state is latched.
	CommandedVelocity geom.Vec3 `json:"commanded_velocity"`
	Lockdown          bool      `json:"lockdown"`

	Certificate certify.Certificate `json:"certificate"`
}

// LockdownFunc is the side channel notified on lockdown transitions. It is
// called once with true when the failure state latches and once with false
// on a successful reset, never repeatedly for re-entrant failures.
type LockdownFunc func(engaged bool)

// Pipeline owns the four safety components and their execution order.
type Pipeline struct {
	clock timeutil.Clock

	est      *estimator.AdaptiveEstimator
	verifier *barrier.Verifier
	scorer   *rigor.Scorer
	compiler *certify.Compiler

	lockdown LockdownFunc
	engaged  bool

	minInterval time.Duration
	lastTick    time.Time
	hasTicked   bool
	last        CycleOutput
}

// New assembles a Pipeline from the tuning configuration. sink receives the
// per-cycle certificates and may be nil; lockdown may be nil when no
// external collaborator listens; clock may be nil for the real clock.
func New(cfg *config.TuningConfig, sink certify.Sink, lockdown LockdownFunc, clock timeutil.Clock) (*Pipeline, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	est := estimator.New(estimator.ConfigFromTuning(cfg))
	verifier, err := barrier.NewVerifier(barrier.ConfigFromTuning(cfg))
	if err != nil {
		return nil, err
	}
	scorer := rigor.NewScorer(rigor.ConfigFromTuning(cfg), est)
	compiler := certify.NewCompiler(certify.ConfigFromTuning(cfg), sink, clock)

	var minInterval time.Duration
	if hz := cfg.GetMaxRateHz(); hz > 0 {
		minInterval = time.Duration(float64(time.Second) / hz)
	}

	return &Pipeline{
		clock:       clock,
		est:         est,
		verifier:    verifier,
		scorer:      scorer,
		compiler:    compiler,
		lockdown:    lockdown,
		minInterval: minInterval,
	}, nil
}

// Tick runs one evaluation cycle. When a maximum rate is configured, ticks
// arriving faster than the rate are dropped and the previous output is
// returned with Processed == false. Persistence failures are logged and do
// not fail the cycle.
func (p *Pipeline) Tick(in CycleInput) CycleOutput {
	now := p.clock.Now()
	if p.minInterval > 0 && p.hasTicked && now.Sub(p.lastTick) < p.minInterval {
		out := p.last
		out.Processed = false
		return out
	}
	p.lastTick = now
	p.hasTicked = true

	// 1. State estimation.
	p.est.Update(in.GPSPosition, in.IMUVelocity, in.Dt)
	pos, vel := p.est.StateEstimate()

	// 2. Barrier verification against the estimated state.
	barrierRec := p.verifier.Evaluate(pos, vel, in.Obstacles)

	// 3. Cognitive scoring.
	var goalDistance *float64
	if in.GoalPosition != nil {
		d := pos.DistanceTo(*in.GoalPosition)
		goalDistance = &d
	}
	scoreRec := p.scorer.Evaluate(rigor.Inputs{
		Barrier:        &barrierRec,
		GoalDistance:   goalDistance,
		Intent:         in.ModelIntentConfidence,
		FatigueTrigger: in.FatigueTrigger,
	}, in.Dt)

	// Lockdown transition fires exactly once per latch.
	if scoreRec.State == rigor.StateFailure && !p.engaged {
		p.engaged = true
		if p.lockdown != nil {
			p.lockdown(true)
		}
	}

	// 4. Certification.
	cert, err := p.compiler.CompileCertificate(certify.Input{
		PScore:            scoreRec.Total,
		HSafety:           scoreRec.HSafety,
		GoalProximity:     scoreRec.GoalProximity,
		ModelIntent:       scoreRec.ModelIntent,
		Consciousness:     scoreRec.Consciousness,
		BarrierValue:      barrierRec.Value,
		BarrierDerivative: barrierRec.Derivative,
		MinMargin:         barrierRec.MinMargin,
		BreachReason:      scoreRec.BreachReason,
	})
	if err != nil {
		// The in-memory certificate remains valid; persistence problems
		// must not surface as certification failures.
		monitoring.Logf("certificate persistence failed: %v", err)
	}

	commanded := vel
	if p.engaged {
		commanded = geom.Vec3{}
	}

	p.last = CycleOutput{
		Processed:         true,
		Certified:         barrierRec.Certified,
		BarrierValue:      barrierRec.Value,
		BarrierDerivative: barrierRec.Derivative,
		PScore:            scoreRec.Total,
		SubScores:         scoreRec,
		Sim2ValEstimate:   cert.Sim2ValEstimate,
		Sigma:             cert.Sigma,
		EstimatedPosition: pos,
		EstimatedVelocity: vel,
		FaultDetected:     p.est.FaultDetected(),
		CommandedVelocity: commanded,
		Lockdown:          p.engaged,
		Certificate:       cert,
	}
	return p.last
}

// Reset attempts to clear a latched failure. It succeeds only once the
// P-score has recovered above threshold; on success the lockdown side
// channel is released.
func (p *Pipeline) Reset() bool {
	if !p.scorer.Reset() {
		return false
	}
	if p.engaged {
		p.engaged = false
		if p.lockdown != nil {
			p.lockdown(false)
		}
	}
	return true
}

// Estimator exposes the state estimator for monitoring reads.
func (p *Pipeline) Estimator() *estimator.AdaptiveEstimator {
	return p.est
}

// Verifier exposes the barrier verifier for monitoring reads and runtime
// alpha updates.
func (p *Pipeline) Verifier() *barrier.Verifier {
	return p.verifier
}

// Scorer exposes the cognitive scorer for monitoring reads.
func (p *Pipeline) Scorer() *rigor.Scorer {
	return p.scorer
}

// Compiler exposes the certification compiler for monitoring reads.
func (p *Pipeline) Compiler() *certify.Compiler {
	return p.compiler
}

// LastOutput returns the most recent cycle output.
func (p *Pipeline) LastOutput() CycleOutput {
	return p.last
}
