// Package rigor implements the cognitive safety scorer. It folds positional
// safety, goal proximity, model intent confidence and a consciousness/fatigue
// process into a single P-score, and gates certification through a latched
// Safe→Failure state machine.
package rigor

import (
	"github.com/nav-lambda/safety.report/internal/barrier"
	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/geom"
)

// Certification states.
type State string

const (
	StateSafe    State = "safe"
	StateFailure State = "failure" // latched until explicit reset
)

// Breach reasons carried on the certificate record.
const (
	BreachNone         = "SAFE"
	BreachVNC          = "VNC_VIOLATION"
	BreachFatigue      = "FATIGUE"
	BreachLowCertainty = "LOW_CERTAINTY"
)

// CertaintySource is the estimator capability the scorer consumes: a
// certainty scalar and the integrity fault flag (which doubles as a
// fatigue trigger).
type CertaintySource interface {
	Certainty() float64
	FaultDetected() bool
}

// Record is the immutable per-cycle P-score breakdown.
// Total is the unweighted sum of exactly the four sub-scores; that sum is
// an interface invariant, not a tunable model.
type Record struct {
	HSafety       float64 `json:"h_safety"`
	GoalProximity float64 `json:"goal_proximity"`
	ModelIntent   float64 `json:"model_intent"`
	Consciousness float64 `json:"consciousness"`
	Total         float64 `json:"p_score"`

	State        State  `json:"state"`
	BreachReason string `json:"breach_reason"`
}

// Config holds scorer parameters.
type Config struct {
	PScoreThreshold      float64 // P below this latches the failure state
	MaxGoalDistance      float64 // Normalisation range for goal proximity (metres)
	DefaultIntent        float64 // Intent sub-score when no intent source is wired
	DefaultProximity     float64 // Goal sub-score when no goal is assigned
	FatigueDecayRate     float64 // Consciousness decay per second while triggered
	FatigueRecoveryRate  float64 // Consciousness recovery per second otherwise
	FatigueBreachLevel   float64 // Consciousness below this reports FATIGUE
	CertaintyBreachLevel float64 // Estimator certainty below this reports LOW_CERTAINTY
}

// ConfigFromTuning builds a scorer Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		PScoreThreshold:      cfg.GetPScoreThreshold(),
		MaxGoalDistance:      cfg.GetMaxGoalDistance(),
		DefaultIntent:        cfg.GetDefaultIntent(),
		DefaultProximity:     cfg.GetDefaultProximity(),
		FatigueDecayRate:     cfg.GetFatigueDecayRate(),
		FatigueRecoveryRate:  cfg.GetFatigueRecoveryRate(),
		FatigueBreachLevel:   cfg.GetFatigueBreachLevel(),
		CertaintyBreachLevel: cfg.GetCertaintyBreachLevel(),
	}
}

// Inputs are the per-cycle external signals for one evaluation.
type Inputs struct {
	// Barrier is the verifier record for this cycle. Nil means no
	// verifier is wired and the distance proxy is used instead.
	Barrier *barrier.Record
	// MinObstacleDistance feeds the h_safety proxy when Barrier is nil.
	MinObstacleDistance float64
	// GoalDistance is the distance to the assigned goal. Nil means no
	// goal assigned (neutral default applies, never zero).
	GoalDistance *float64
	// Intent is the model intent confidence in [0,1]. Nil means no
	// intent source (neutral default applies).
	Intent *float64
	// FatigueTrigger holds the consciousness decay active. The
	// estimator's fault flag is OR-ed in as an additional trigger.
	FatigueTrigger bool
}

// Scorer combines sub-scores into P and drives the latched failure gate.
// Collaborators are injected at construction; the scorer never looks
// anything up at runtime.
type Scorer struct {
	cfg Config
	est CertaintySource

	consciousness float64
	state         State
	last          Record
}

// NewScorer creates a Scorer reading certainty and fault state from est.
// est may be nil; the certainty breach check is then skipped.
func NewScorer(cfg Config, est CertaintySource) *Scorer {
	return &Scorer{
		cfg:           cfg,
		est:           est,
		consciousness: 1.0,
		state:         StateSafe,
	}
}

// Evaluate computes the P-score record for one cycle. dt is the elapsed
// time in seconds, driving the consciousness decay/recovery process.
//
// Missing optional inputs resolve to documented neutral defaults, never to
// zero: a disconnected intent source must not read as a hard-unsafe signal.
func (s *Scorer) Evaluate(in Inputs, dt float64) Record {
	s.advanceConsciousness(in.FatigueTrigger, dt)

	rec := Record{
		HSafety:       s.hSafety(in),
		GoalProximity: s.goalProximity(in.GoalDistance),
		ModelIntent:   s.modelIntent(in.Intent),
		Consciousness: s.consciousness,
	}
	rec.Total = rec.HSafety + rec.GoalProximity + rec.ModelIntent + rec.Consciousness
	rec.BreachReason = s.breachReason(in)

	// Latched gate: a sub-threshold P enters the failure state; leaving
	// it requires both recovery of the score and an explicit Reset().
	if rec.Total < s.cfg.PScoreThreshold {
		s.state = StateFailure
	}
	rec.State = s.state

	s.last = rec
	return rec
}

// advanceConsciousness runs the fatigue decay/recovery process. The value
// is clamped to [0,1] on every step, so it is asymptotically bounded no
// matter how long a trigger is held.
func (s *Scorer) advanceConsciousness(trigger bool, dt float64) {
	if dt <= 0 {
		return
	}
	if trigger || (s.est != nil && s.est.FaultDetected()) {
		s.consciousness -= s.cfg.FatigueDecayRate * dt
	} else {
		s.consciousness += s.cfg.FatigueRecoveryRate * dt
	}
	s.consciousness = geom.Clamp01(s.consciousness)
}

// hSafety rescales the barrier value into the [0,100] band, or falls back
// to a distance-based proxy when no verifier is wired.
func (s *Scorer) hSafety(in Inputs) float64 {
	if in.Barrier != nil {
		return geom.Clamp(in.Barrier.Value*50+50, 0, 100)
	}
	return geom.Clamp01(in.MinObstacleDistance/s.cfg.MaxGoalDistance) * 100
}

func (s *Scorer) goalProximity(goalDistance *float64) float64 {
	if goalDistance == nil {
		return s.cfg.DefaultProximity
	}
	return 1 - geom.Clamp01(*goalDistance/s.cfg.MaxGoalDistance)
}

func (s *Scorer) modelIntent(intent *float64) float64 {
	if intent == nil {
		return s.cfg.DefaultIntent
	}
	return geom.Clamp01(*intent)
}

// breachReason classifies the dominant safety concern for the certificate
// record. Barrier violations dominate, then fatigue, then estimator
// certainty.
func (s *Scorer) breachReason(in Inputs) string {
	if in.Barrier != nil && !in.Barrier.Certified {
		return BreachVNC
	}
	if s.consciousness < s.cfg.FatigueBreachLevel {
		return BreachFatigue
	}
	if s.est != nil && s.est.Certainty() < s.cfg.CertaintyBreachLevel {
		return BreachLowCertainty
	}
	return BreachNone
}

// Reset clears the latched failure state. It only succeeds once the last
// evaluated P-score is back above threshold; resetting while still
// sub-threshold is refused.
func (s *Scorer) Reset() bool {
	if s.state == StateFailure && s.last.Total >= s.cfg.PScoreThreshold {
		s.state = StateSafe
		s.last.State = StateSafe
		return true
	}
	return s.state == StateSafe
}

// PScore returns the most recent total P-score.
func (s *Scorer) PScore() float64 {
	return s.last.Total
}

// TotalScore is an alias for PScore.
func (s *Scorer) TotalScore() float64 {
	return s.PScore()
}

// GoalProximity returns the most recent goal proximity sub-score.
func (s *Scorer) GoalProximity() float64 {
	return s.last.GoalProximity
}

// ModelIntent returns the most recent intent sub-score.
func (s *Scorer) ModelIntent() float64 {
	return s.last.ModelIntent
}

// Consciousness returns the current consciousness level in [0,1].
func (s *Scorer) Consciousness() float64 {
	return s.consciousness
}

// IsConsciousnessFailure reports whether the failure state is latched.
func (s *Scorer) IsConsciousnessFailure() bool {
	return s.state == StateFailure
}

// LastRecord returns the most recent evaluation record.
func (s *Scorer) LastRecord() Record {
	return s.last
}

// SetConsciousness overrides the consciousness level. Test hook.
func (s *Scorer) SetConsciousness(v float64) {
	s.consciousness = geom.Clamp01(v)
}
