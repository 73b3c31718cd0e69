// Package certify implements the statistical certification compiler. Each
// cycle it folds the current safety margin into a sliding window of
// near-miss indicators, produces a control-variate (SIM2VAL) bias-corrected
// estimate of the safety metric with its sigma, and emits an immutable,
// hash-chained certificate to an append-only sink.
package certify

import (
	"gonum.org/v1/gonum/stat"

	"github.com/google/uuid"

	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/geom"
	"github.com/nav-lambda/safety.report/internal/timeutil"
)

// marginNormalization is the margin (metres) at which the near-miss
// indicator Y reaches zero. Margins at or beyond this range contribute no
// near-miss signal.
const marginNormalization = 5.0

// Config holds compiler parameters.
type Config struct {
	WindowCapacity        int     // Sliding window size; 0 disables windowed statistics
	Beta                  float64 // Control-variate coefficient in [0,1]
	Scale                 float64 // Correction scale applied to the Y deviation
	HistoricalMeanDefault float64 // Mean reported while the window is empty
	PScoreThreshold       float64 // Verification threshold on the P-score
	MinWindowSamples      int     // Samples required before sigma/variance are reported; never below 2
}

// ConfigFromTuning builds a compiler Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WindowCapacity:        cfg.GetWindowCapacity(),
		Beta:                  cfg.GetControlVariateBeta(),
		Scale:                 cfg.GetControlVariateScale(),
		HistoricalMeanDefault: cfg.GetHistoricalMeanDefault(),
		PScoreThreshold:       cfg.GetPScoreThreshold(),
		MinWindowSamples:      cfg.GetMinWindowSamples(),
	}
}

// Input is the per-cycle evidence the compiler certifies.
type Input struct {
	PScore        float64
	HSafety       float64
	GoalProximity float64
	ModelIntent   float64
	Consciousness float64

	BarrierValue      float64
	BarrierDerivative float64
	// MinMargin is the smallest obstacle clearance this cycle (metres).
	MinMargin float64

	// BreachReason is the scorer's classification; it becomes the status
	// string on unverified certificates.
	BreachReason string
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	TotalCertificates int     `json:"total_certificates"`
	WindowSize        int     `json:"window_size"`
	HistoricalMean    float64 `json:"historical_mean"`
	CurrentVariance   float64 `json:"current_variance"`
	CurrentSigma      float64 `json:"current_sigma"`
}

// sample is one paired observation: X the rescaled safety metric, Y the
// near-miss control variate.
type sample struct {
	x, y float64
}

// Compiler runs the SIM2VAL control-variate estimate over a FIFO window of
// paired samples and emits hash-chained certificates. Single-owner state;
// callers drive it once per cycle.
type Compiler struct {
	cfg   Config
	clock timeutil.Clock
	sink  Sink

	window   []sample
	total    int
	lastHash string
	last     Certificate
}

// NewCompiler creates a Compiler writing to sink. sink may be nil, in which
// case certificates are only held in memory. clock may be nil for the real
// clock.
func NewCompiler(cfg Config, sink Sink, clock timeutil.Clock) *Compiler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Compiler{cfg: cfg, sink: sink, clock: clock}
}

// nearMiss maps a safety margin to the control variate Y in [0,1]: 1 at
// contact, 0 at or beyond the normalization range.
func nearMiss(margin float64) float64 {
	return geom.Clamp01(1 - margin/marginNormalization)
}

// CompileCertificate runs one compilation cycle: update the window, compute
// the bias-corrected estimate and sigma, build the certificate, chain it,
// and append it to the sink.
//
// A sink failure is returned alongside the certificate; the certificate is
// still valid and retained in memory. Callers report the error but must not
// treat it as a certification failure.
func (c *Compiler) CompileCertificate(in Input) (Certificate, error) {
	y := nearMiss(in.MinMargin)
	x := (1 - y) * 100

	c.push(sample{x: x, y: y})

	xs, ys := c.series()
	estimate := c.estimate(x, y, xs, ys)
	sigma := c.popSigma(xs)

	verified := in.PScore >= c.cfg.PScoreThreshold
	status := in.BreachReason
	if verified {
		status = StatusVerifiedSafe
	} else if status == "" {
		status = StatusUnsafe
	}

	cert := Certificate{
		ID:                uuid.New().String(),
		Timestamp:         c.clock.Now().UTC(),
		EquationID:        EquationID,
		HSafety:           in.HSafety,
		GoalProximity:     in.GoalProximity,
		ModelIntent:       in.ModelIntent,
		Consciousness:     in.Consciousness,
		PScore:            in.PScore,
		BarrierValue:      in.BarrierValue,
		BarrierDerivative: in.BarrierDerivative,
		Margin:            in.MinMargin,
		Sim2ValEstimate:   estimate,
		Sigma:             sigma,
		Status:            status,
		Verified:          verified,
		PrevHash:          c.lastHash,
	}
	cert.Hash = cert.computeHash()

	c.lastHash = cert.Hash
	c.last = cert
	c.total++

	if c.sink != nil {
		if err := c.sink.Append(cert); err != nil {
			return cert, err
		}
	}
	return cert, nil
}

// estimate applies the control-variate correction
// p̂ = X̄ + β·(Y − Ȳ)·scale over the current window. With an empty window
// (capacity 0) the historical default mean stands in for X̄ and the
// correction is skipped.
func (c *Compiler) estimate(x, y float64, xs, ys []float64) float64 {
	if len(xs) == 0 {
		return c.cfg.HistoricalMeanDefault
	}
	xMean := stat.Mean(xs, nil)
	yMean := stat.Mean(ys, nil)
	return xMean + c.cfg.Beta*(y-yMean)*c.cfg.Scale
}

// push appends a sample, evicting the oldest once the window is full. A
// zero capacity keeps the window permanently empty.
func (c *Compiler) push(s sample) {
	if c.cfg.WindowCapacity <= 0 {
		return
	}
	if len(c.window) >= c.cfg.WindowCapacity {
		c.window = c.window[1:]
	}
	c.window = append(c.window, s)
}

func (c *Compiler) series() (xs, ys []float64) {
	xs = make([]float64, len(c.window))
	ys = make([]float64, len(c.window))
	for i, s := range c.window {
		xs[i] = s.x
		ys[i] = s.y
	}
	return xs, ys
}

// minSamples is the sample count the window must reach before sigma and
// variance are reported. The floor of 2 keeps single-sample variance from
// producing NaN regardless of configuration.
func (c *Compiler) minSamples() int {
	if c.cfg.MinWindowSamples < 2 {
		return 2
	}
	return c.cfg.MinWindowSamples
}

// popSigma is the population standard deviation; 0 while the window holds
// fewer than the configured minimum samples.
func (c *Compiler) popSigma(xs []float64) float64 {
	if len(xs) < c.minSamples() {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

// ResumeChain seeds the hash chain from the last persisted certificate so
// records appended after a restart still link back to the existing log.
func (c *Compiler) ResumeChain(lastHash string, totalSoFar int) {
	c.lastHash = lastHash
	c.total = totalSoFar
}

// GetStats reports compiler statistics for the monitoring surface.
func (c *Compiler) GetStats() Stats {
	xs, _ := c.series()
	st := Stats{
		TotalCertificates: c.total,
		WindowSize:        len(xs),
		HistoricalMean:    c.cfg.HistoricalMeanDefault,
		CurrentSigma:      c.popSigma(xs),
	}
	if len(xs) > 0 {
		st.HistoricalMean = stat.Mean(xs, nil)
	}
	if len(xs) >= c.minSamples() {
		st.CurrentVariance = stat.PopVariance(xs, nil)
	}
	return st
}

// LastCertificate returns the most recently compiled certificate.
func (c *Compiler) LastCertificate() Certificate {
	return c.last
}

// WindowSize returns the current number of samples in the window.
func (c *Compiler) WindowSize() int {
	return len(c.window)
}
