package hdhmm

import (
	"fmt"
	"math"
)

// forwardAlgorithm fills the forward table for the block [start, end)
// and returns the total block log-likelihood.  The foreground slot at i
// sums, over all candidate segment starts within the MaxLen window, the
// likelihood of entering foreground there and emitting the whole
// segment; the background slot extends a background run or closes a
// foreground segment at i-1.
func (e *Engine) forwardAlgorithm(start, end int) float64 {

	p := e.bgDuration.Params()[0]
	selfLP := math.Log(1 - p)
	switchLP := math.Log(p)

	for i := start; i < end; i++ {
		e.forwardFg[i] = 0
		e.forwardBg[i] = 0
	}

	e.forwardFg[start] = e.lpSF + e.fgSegLL(start, start+1) + e.fgDuration.LogLikelihood(1)
	e.forwardBg[start] = e.lpSB + e.bgSegLL(start, start+1)

	for i := start + 1; i < end; i++ {

		maxLen := i - start + 1
		if maxLen > e.cfg.MaxLen {
			maxLen = e.cfg.MaxLen
		}
		for l := 1; l <= maxLen; l++ {
			beg := i - l + 1

			var v float64
			if beg == start {
				v = e.lpSF
			} else {
				v = e.forwardBg[beg-1] + switchLP
			}
			v += e.fgSegLL(beg, i+1) + e.fgDuration.LogLikelihood(float64(l))

			e.forwardFg[i] = logSumLog(e.forwardFg[i], v)
		}

		e.forwardBg[i] = logSumLog(e.forwardFg[i-1], e.forwardBg[i-1]+selfLP) +
			e.bgSegLL(i, i+1)
	}

	total := logSumLog(e.forwardFg[end-1]+e.lpFT, e.forwardBg[end-1]+e.lpBT)
	checkFinite(total, "forward total")

	return total
}

// backwardAlgorithm is the mirror recursion, run from end-1 down to
// start.  The foreground slot at i holds "a foreground segment ends
// exactly at i"; the background slot folds in remaining-as-background
// and every way of switching into a foreground segment of length up to
// MaxLen.  Returns the whole-block log-likelihood, which must agree
// with the forward total.
func (e *Engine) backwardAlgorithm(start, end int) float64 {

	p := e.bgDuration.Params()[0]
	selfLP := math.Log(1 - p)
	switchLP := math.Log(p)

	for i := start; i < end; i++ {
		e.backwardFg[i] = 0
		e.backwardBg[i] = 0
	}

	e.backwardFg[end-1] = e.lpFT
	e.backwardBg[end-1] = e.lpBT

	for i := end - 2; i >= start; i-- {

		// A foreground segment ending at i forces position i+1 into
		// background.
		e.backwardFg[i] = e.bgSegLL(i+1, i+2) + e.backwardBg[i+1]

		e.backwardBg[i] = selfLP + e.bgSegLL(i+1, i+2) + e.backwardBg[i+1]

		maxLen := end - i - 1
		if maxLen > e.cfg.MaxLen {
			maxLen = e.cfg.MaxLen
		}
		for l := 1; l <= maxLen; l++ {
			beg := i + 1
			fin := i + l + 1

			v := switchLP + e.fgSegLL(beg, fin) +
				e.fgDuration.LogLikelihood(float64(l)) + e.backwardFg[fin-1]
			e.backwardBg[i] = logSumLog(e.backwardBg[i], v)
		}
	}

	// Whole-block likelihood: the first segment is background, or
	// foreground of every admissible length.
	llh := e.lpSB + e.bgSegLL(start, start+1) + e.backwardBg[start]

	maxLen := end - start
	if maxLen > e.cfg.MaxLen {
		maxLen = e.cfg.MaxLen
	}
	for l := 1; l <= maxLen; l++ {
		v := e.lpSF + e.fgSegLL(start, start+l) +
			e.fgDuration.LogLikelihood(float64(l)) + e.backwardFg[start+l-1]
		llh = logSumLog(llh, v)
	}
	checkFinite(llh, "backward total")

	return llh
}

// estimateStatePosterior combines the forward and backward tables into
// per-position state posteriors for the block [start, end).  For each
// candidate segment start s, segment evidence is accumulated from the
// longest admissible segment down, so that the running sum at end point
// e covers every segment extending through position e-1.
func (e *Engine) estimateStatePosterior(start, end int) {

	switchLP := math.Log(e.bgDuration.Params()[0])

	for i := start; i < end; i++ {
		e.fgEv[i] = 0
		e.bgEv[i] = 0
	}

	for s := start; s < end; s++ {

		hi := s + e.cfg.MaxLen
		if hi > end {
			hi = end
		}
		accu := 0.0
		for fin := hi; fin > s; fin-- {
			var v float64
			if s == start {
				v = e.lpSF
			} else {
				v = e.forwardBg[s-1] + switchLP
			}
			v += e.fgDuration.LogLikelihood(float64(fin-s)) +
				e.fgSegLL(s, fin) + e.backwardFg[fin-1]

			accu = logSumLog(accu, v)
			e.fgEv[fin-1] = logSumLog(e.fgEv[fin-1], accu)
		}

		e.bgEv[s] = e.forwardBg[s] + e.backwardBg[s]
	}

	for i := start; i < end; i++ {
		denom := logSumLog(e.fgEv[i], e.bgEv[i])
		e.fgPost[i] = math.Exp(e.fgEv[i] - denom)
		e.bgPost[i] = math.Exp(e.bgEv[i] - denom)

		if math.Abs(e.fgPost[i]+e.bgPost[i]-1) > 1e-6 {
			panic(&NumericError{Msg: fmt.Sprintf("posteriors at %d sum to %g",
				i, e.fgPost[i]+e.bgPost[i])})
		}
	}
}
