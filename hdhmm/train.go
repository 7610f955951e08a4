package hdhmm

import (
	"fmt"
	"math"

	"github.com/schollz/progressbar"
)

// estimateParameters is the M-step.  Emissions are refit softly from the
// posteriors; durations are refit from hard run-length statistics: each
// position is labeled by posterior argmax, run lengths of equal labels
// are collected per block, and each duration family is refit by maximum
// likelihood from its sample.  Empty samples leave the previous
// parameters unchanged.  The trailing run of each block has no observed
// end and is not counted.
func (e *Engine) estimateParameters() {

	e.fgEmission.Fit(e.methLP, e.unmethLP, e.fgPost)
	e.bgEmission.Fit(e.methLP, e.unmethLP, e.bgPost)
	e.updateObservationLikelihood()

	var fgLengths, bgLengths []float64
	for k := 0; k < len(e.resetPoints)-1; k++ {
		start := e.resetPoints[k]
		end := e.resetPoints[k+1]

		prev := e.fgPost[start] > e.bgPost[start]
		length := 1.0
		for i := start + 1; i < end; i++ {
			state := e.fgPost[i] > e.bgPost[i]
			if state == prev {
				length++
				continue
			}
			if prev {
				fgLengths = append(fgLengths, length)
			} else {
				bgLengths = append(bgLengths, length)
			}
			prev = state
			length = 1
		}
	}

	if len(fgLengths) > 0 {
		e.fgDuration.EstimateML(fgLengths)
	}
	if len(bgLengths) > 0 {
		e.bgDuration.EstimateML(bgLengths)
	}
}

// checkAgreement panics when the forward and backward totals for a block
// disagree beyond relative tolerance.  Disagreement signals a defect,
// not a degenerate input.
func checkAgreement(fwd, bwd float64) {
	if math.Abs((fwd-bwd)/math.Max(fwd, bwd)) >= 1e-10 {
		panic(&NumericError{Msg: fmt.Sprintf(
			"forward (%g) and backward (%g) totals disagree", fwd, bwd)})
	}
}

// singleIteration runs forward, backward, and the posterior estimator
// over every block, then the M-step.  Returns the summed block
// log-likelihood under the pre-iteration parameters.
func (e *Engine) singleIteration() float64 {

	var total float64
	for k := 0; k < len(e.resetPoints)-1; k++ {
		start := e.resetPoints[k]
		end := e.resetPoints[k+1]

		fwd := e.forwardAlgorithm(start, end)
		bwd := e.backwardAlgorithm(start, end)
		checkAgreement(fwd, bwd)

		e.estimateStatePosterior(start, end)
		total += fwd
	}

	e.estimateParameters()

	return total
}

type paramSnapshot struct {
	fgEmission []float64
	bgEmission []float64
	fgDuration []float64
	bgDuration []float64
}

func (e *Engine) snapshot() paramSnapshot {
	return paramSnapshot{
		fgEmission: e.fgEmission.Params(),
		bgEmission: e.bgEmission.Params(),
		fgDuration: e.fgDuration.Params(),
		bgDuration: e.bgDuration.Params(),
	}
}

func (e *Engine) restore(s paramSnapshot) {
	e.fgEmission.SetParams(s.fgEmission)
	e.bgEmission.SetParams(s.bgEmission)
	e.fgDuration.SetParams(s.fgDuration)
	e.bgDuration.SetParams(s.bgDuration)
	e.updateObservationLikelihood()
}

// BaumWelchTraining iterates EM until the relative log-likelihood change
// drops below the tolerance or the iteration budget is exhausted.  On
// convergence the parameters are rolled back to their pre-iteration
// values: the iteration whose score triggered convergence is discarded.
// Returns the best (pre-rollback) total log-likelihood.
func (e *Engine) BaumWelchTraining() float64 {

	if e.cfg.Verbose {
		e.msglogger.Printf("%5s %18s %20s %18s %18s %14s %14s",
			"ITR", "FG EMISSION", "FG DURATION", "BG EMISSION", "BG DURATION",
			"LIKELIHOOD", "DELTA")
	}

	prevTotal := -math.MaxFloat64

	for i := 0; i < e.cfg.MaxIter; i++ {

		snap := e.snapshot()
		oldFgE := e.fgEmission.String()
		oldBgE := e.bgEmission.String()
		oldFgD := e.fgDuration.String()
		oldBgD := e.bgDuration.String()

		total := e.singleIteration()
		delta := (total - prevTotal) / math.Abs(total)

		if e.cfg.Verbose {
			e.msglogger.Printf("%5d %18s %20s %18s %18s %14.4f %14.4g",
				i+1, oldFgE, oldFgD, oldBgE, oldBgD, total, delta)
		}

		if delta < e.cfg.Tolerance {
			e.restore(snap)
			if e.cfg.Verbose {
				e.msglogger.Printf("converged at iteration %d", i+1)
			}
			break
		}
		prevTotal = total
	}

	return prevTotal
}

// PosteriorDecoding runs one forward/backward/posterior pass per block
// against the current parameters, with no re-estimation, and returns the
// summed block log-likelihood.  Side-effect-free with respect to the
// model parameters.
func (e *Engine) PosteriorDecoding() float64 {

	nblocks := len(e.resetPoints) - 1

	var bar *progressbar.ProgressBar
	if e.cfg.Verbose {
		bar = progressbar.New(nblocks)
	}

	var total float64
	for k := 0; k < nblocks; k++ {
		start := e.resetPoints[k]
		end := e.resetPoints[k+1]

		fwd := e.forwardAlgorithm(start, end)
		bwd := e.backwardAlgorithm(start, end)
		checkAgreement(fwd, bwd)

		e.estimateStatePosterior(start, end)
		total += fwd

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	return total
}

// PosteriorScores returns the per-position foreground posterior and the
// decoded label: foreground where the foreground posterior exceeds the
// background posterior.
func (e *Engine) PosteriorScores() ([]float64, []bool) {

	scores := make([]float64, len(e.obs))
	copy(scores, e.fgPost)

	classes := make([]bool, len(e.obs))
	for i := range classes {
		classes[i] = e.fgPost[i] > e.bgPost[i]
	}

	return scores, classes
}

// Posteriors returns copies of the per-position foreground and
// background posterior probabilities.
func (e *Engine) Posteriors() ([]float64, []float64) {

	fg := make([]float64, len(e.fgPost))
	copy(fg, e.fgPost)
	bg := make([]float64, len(e.bgPost))
	copy(bg, e.bgPost)

	return fg, bg
}
