// Package hdhmm implements a two-state hidden semi-Markov model for
// segmenting a long ordered sequence of paired methylated/unmethylated
// read counts into foreground and background regions.  The foreground
// state carries an explicit duration distribution; the background state
// has geometric duration through a self-transition probability.  The
// model is trained by EM (a Baum-Welch variant) and decoded by posterior
// marginal probability.
package hdhmm

import (
	"fmt"
	"log"
	"math"
	"os"
)

// Per-site methylation fractions are clamped away from 0 and 1 before
// taking logs, since sites with extreme fractions would otherwise
// dominate the weighted emission fit.
const lpClamp = 1e-2

// Obs is one observation: methylated and unmethylated read counts at a site.
type Obs struct {
	Meth   float64
	Unmeth float64
}

// EmissionModel scores single observations and can be refit from
// posterior-weighted data.  Params and SetParams exist so that a trainer
// can snapshot and restore the model; Params returns a copy.
type EmissionModel interface {
	LogLikelihood(ob Obs) float64

	// Fit refits the model from the per-site log methylation and
	// log unmethylation fractions, weighted by posterior probabilities.
	Fit(methLP, unmethLP, posteriors []float64)

	Params() []float64
	SetParams(params []float64)
	String() string
}

// DurationModel scores segment lengths.  When used in the background
// role, the first parameter is the probability of leaving the background
// state; the background self-transition probability is its complement.
type DurationModel interface {
	LogLikelihood(length float64) float64

	// EstimateML refits the model from a sample of observed run
	// lengths.  An empty sample leaves the parameters unchanged.
	EstimateML(lengths []float64)

	Params() []float64
	SetParams(params []float64)
	String() string
}

// NumericError reports a fatal breakdown of the log-space recursions:
// a non-finite likelihood, or forward and backward totals that disagree.
// These indicate an arithmetic or modeling bug, so the engine panics
// with a NumericError rather than attempting recovery.
type NumericError struct {
	Msg string
}

func (e *NumericError) Error() string {
	return "hdhmm: " + e.Msg
}

// Config collects the engine options.
type Config struct {
	// MaxLen is the longest foreground segment scored as a unit by the
	// dynamic program.  Longer foreground runs are represented as
	// concatenations of shorter segments.
	MaxLen int

	// MinProb is the termination probability for both states.
	MinProb float64

	// Tolerance is the relative log-likelihood change below which EM
	// training stops.
	Tolerance float64

	// MaxIter caps the number of EM iterations.
	MaxIter int

	Verbose bool
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		MaxLen:    200,
		MinProb:   1e-10,
		Tolerance: 1e-10,
		MaxIter:   10,
	}
}

// Engine owns the forward/backward/posterior workspaces for one
// observation array.  The tables are sized once and overwritten per
// block, so a single Engine must not be used concurrently.
type Engine struct {
	obs         []Obs
	resetPoints []int

	// Per-site log fractions, consumed by the emission fit.
	methLP   []float64
	unmethLP []float64

	// Prefix sums of per-site emission log-likelihoods, one per state.
	// Rebuilt whenever the emission parameters change.
	fgLL []float64
	bgLL []float64

	// Forward and backward tables.  The fg slot holds "a foreground
	// segment ends here"; the bg slot holds "in background here".
	forwardFg  []float64
	forwardBg  []float64
	backwardFg []float64
	backwardBg []float64

	// Evidence scratch for the posterior estimator.
	fgEv []float64
	bgEv []float64

	fgPost []float64
	bgPost []float64

	fgEmission EmissionModel
	bgEmission EmissionModel
	fgDuration DurationModel
	bgDuration DurationModel

	lpSF, lpSB float64 // log P(start in foreground / background)
	lpFT, lpBT float64 // log P(terminate | foreground / background)

	cfg       Config
	msglogger *log.Logger
}

// New returns an engine for the given observations.  The reset points
// must be strictly increasing, starting at 0 and ending at len(obs);
// no recursion or duration count crosses a reset boundary.
func New(obs []Obs, resetPoints []int, cfg Config) *Engine {

	if len(obs) == 0 {
		panic("hdhmm: no observations")
	}
	if len(resetPoints) < 2 || resetPoints[0] != 0 || resetPoints[len(resetPoints)-1] != len(obs) {
		panic("hdhmm: reset points must start at 0 and end at len(obs)")
	}
	for i := 1; i < len(resetPoints); i++ {
		if resetPoints[i] <= resetPoints[i-1] {
			panic("hdhmm: reset points must be strictly increasing")
		}
	}

	n := len(obs)
	e := &Engine{
		obs:         obs,
		resetPoints: resetPoints,
		methLP:      make([]float64, n),
		unmethLP:    make([]float64, n),
		fgLL:        make([]float64, n),
		bgLL:        make([]float64, n),
		forwardFg:   make([]float64, n),
		forwardBg:   make([]float64, n),
		backwardFg:  make([]float64, n),
		backwardBg:  make([]float64, n),
		fgEv:        make([]float64, n),
		bgEv:        make([]float64, n),
		fgPost:      make([]float64, n),
		bgPost:      make([]float64, n),
		cfg:         cfg,
		msglogger:   log.New(os.Stderr, "", log.Ltime),
	}

	for i, ob := range obs {
		t := ob.Meth + ob.Unmeth
		e.methLP[i] = math.Log(clamp(ob.Meth/t, lpClamp, 1-lpClamp))
		e.unmethLP[i] = math.Log(clamp(ob.Unmeth/t, lpClamp, 1-lpClamp))
	}

	return e
}

// SetLogger directs the engine's messages to the given logger.
func (e *Engine) SetLogger(logger *log.Logger) {
	e.msglogger = logger
}

// SetParameters installs the emission and duration models and resets the
// start/termination probabilities to their reference values.  The
// segment likelihood caches are rebuilt.
func (e *Engine) SetParameters(fgEmission, bgEmission EmissionModel, fgDuration, bgDuration DurationModel) {

	e.fgEmission = fgEmission
	e.bgEmission = bgEmission
	e.fgDuration = fgDuration
	e.bgDuration = bgDuration
	e.updateObservationLikelihood()

	e.lpSF = math.Log(0.5)
	e.lpSB = math.Log(0.5)
	e.lpFT = math.Log(e.cfg.MinProb)
	e.lpBT = math.Log(e.cfg.MinProb)
}

// Parameters returns the current emission and duration models.
func (e *Engine) Parameters() (EmissionModel, EmissionModel, DurationModel, DurationModel) {
	return e.fgEmission, e.bgEmission, e.fgDuration, e.bgDuration
}

// updateObservationLikelihood rebuilds the per-state prefix sums of the
// per-site emission log-likelihoods.  Must be called after every
// emission refit; stale values are a correctness bug.
func (e *Engine) updateObservationLikelihood() {

	e.fgLL[0] = e.fgEmission.LogLikelihood(e.obs[0])
	e.bgLL[0] = e.bgEmission.LogLikelihood(e.obs[0])

	for i := 1; i < len(e.obs); i++ {
		e.fgLL[i] = e.fgLL[i-1] + e.fgEmission.LogLikelihood(e.obs[i])
		e.bgLL[i] = e.bgLL[i-1] + e.bgEmission.LogLikelihood(e.obs[i])
	}
}

// fgSegLL returns the foreground log-likelihood of the span [start, end).
func (e *Engine) fgSegLL(start, end int) float64 {
	if start == 0 {
		return e.fgLL[end-1]
	}
	return e.fgLL[end-1] - e.fgLL[start-1]
}

// bgSegLL returns the background log-likelihood of the span [start, end).
func (e *Engine) bgSegLL(start, end int) float64 {
	if start == 0 {
		return e.bgLL[end-1]
	}
	return e.bgLL[end-1] - e.bgLL[start-1]
}

// logSumLog combines two log-scale values.  Zero is the empty sentinel:
// the tables are cleared to zero before each sweep and a zero operand
// means no mass has been accumulated yet.
func logSumLog(p, q float64) float64 {
	if p == 0 {
		return q
	}
	if q == 0 {
		return p
	}
	if q > p {
		p, q = q, p
	}
	return p + math.Log1p(math.Exp(q-p))
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func checkFinite(v float64, what string) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		panic(&NumericError{Msg: fmt.Sprintf("%s is not finite", what)})
	}
}
