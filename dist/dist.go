// Package dist provides the emission and duration families consumed by
// the hdhmm engine: a beta-binomial emission model over paired counts,
// and geometric and shifted negative-binomial duration models.
package dist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"

	"github.com/epiverse/hdhmm/hdhmm"
)

const fitTolerance = 1e-10

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func lnbeta(a, b float64) float64 {
	return lgamma(a) + lgamma(b) - lgamma(a+b)
}

func lnchoose(n, k float64) float64 {
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

// BetaBin is a beta-binomial emission distribution with shape parameters
// Alpha and Beta.  The methylated count is the success count among
// Meth+Unmeth trials.
type BetaBin struct {
	Alpha float64
	Beta  float64

	lnBeta float64 // cached log B(Alpha, Beta)
}

// NewBetaBin returns a beta-binomial model with the given shapes.
func NewBetaBin(alpha, beta float64) *BetaBin {
	return &BetaBin{Alpha: alpha, Beta: beta, lnBeta: lnbeta(alpha, beta)}
}

// LogLikelihood returns the log-probability of ob.Meth methylated reads
// among ob.Meth+ob.Unmeth total reads.
func (bb *BetaBin) LogLikelihood(ob hdhmm.Obs) float64 {
	n := ob.Meth + ob.Unmeth
	return lnchoose(n, ob.Meth) + lnbeta(bb.Alpha+ob.Meth, bb.Beta+ob.Unmeth) - bb.lnBeta
}

// invpsi inverts the digamma function by bisection starting from exp(y).
func invpsi(y float64) float64 {

	step := 1.0
	x := math.Exp(y)
	for step > fitTolerance {
		if y > mathext.Digamma(x) {
			x += step
		} else {
			x -= step
		}
		step /= 2
	}

	return x
}

// Fit refits Alpha and Beta by posterior-weighted maximum likelihood,
// alternating inverse-digamma updates on the two shape parameters.
func (bb *BetaBin) Fit(methLP, unmethLP, posteriors []float64) {

	var wsum, alphaRHS, betaRHS float64
	for i, w := range posteriors {
		wsum += w
		alphaRHS += w * methLP[i]
		betaRHS += w * unmethLP[i]
	}
	if wsum < fitTolerance {
		return
	}
	alphaRHS /= wsum
	betaRHS /= wsum

	alpha, beta := 0.01, 0.01
	prevAlpha, prevBeta := 0.0, 0.0
	for it := 0; it < 100; it++ {
		if math.Abs(alpha-prevAlpha) <= fitTolerance && math.Abs(beta-prevBeta) <= fitTolerance {
			break
		}
		prevAlpha, prevBeta = alpha, beta
		alpha = invpsi(mathext.Digamma(prevAlpha+prevBeta) + alphaRHS)
		beta = invpsi(mathext.Digamma(alpha+prevBeta) + betaRHS)
	}

	bb.Alpha = alpha
	bb.Beta = beta
	bb.lnBeta = lnbeta(alpha, beta)
}

// Params returns a copy of the shape parameters.
func (bb *BetaBin) Params() []float64 {
	return []float64{bb.Alpha, bb.Beta}
}

func (bb *BetaBin) SetParams(params []float64) {
	bb.Alpha = params[0]
	bb.Beta = params[1]
	bb.lnBeta = lnbeta(bb.Alpha, bb.Beta)
}

func (bb *BetaBin) String() string {
	return fmt.Sprintf("betabin %.4f %.4f", bb.Alpha, bb.Beta)
}

// Geometric models run lengths with success probability P: the length-l
// probability is (1-P)^(l-1) P.  In the background role P is the
// probability of leaving the background state.
type Geometric struct {
	P float64
}

// NewGeometric returns a geometric duration model.
func NewGeometric(p float64) *Geometric {
	return &Geometric{P: p}
}

func (g *Geometric) LogLikelihood(length float64) float64 {
	return (length-1)*math.Log(1-g.P) + math.Log(g.P)
}

// EstimateML refits P from observed run lengths.  An empty sample is a
// no-op.
func (g *Geometric) EstimateML(lengths []float64) {
	if len(lengths) == 0 {
		return
	}
	g.P = float64(len(lengths)) / floats.Sum(lengths)
}

// Params returns a copy of the parameters.
func (g *Geometric) Params() []float64 {
	return []float64{g.P}
}

func (g *Geometric) SetParams(params []float64) {
	g.P = params[0]
}

func (g *Geometric) String() string {
	return fmt.Sprintf("geo %.6f", g.P)
}

// NegBinom models run lengths as 1 plus a negative-binomial count with
// dispersion R and success probability P, giving the foreground state a
// non-geometric duration profile.
type NegBinom struct {
	R float64
	P float64
}

// NewNegBinom returns a shifted negative-binomial duration model.
func NewNegBinom(r, p float64) *NegBinom {
	return &NegBinom{R: r, P: p}
}

func (nb *NegBinom) LogLikelihood(length float64) float64 {
	k := length - 1
	return lgamma(k+nb.R) - lgamma(nb.R) - lgamma(k+1) +
		nb.R*math.Log(nb.P) + k*math.Log(1-nb.P)
}

// EstimateML refits by method of moments on the shifted lengths.  The
// dispersion is only updated when the sample variance exceeds the mean;
// otherwise the data carry no overdispersion signal and R is kept.  An
// empty sample is a no-op.
func (nb *NegBinom) EstimateML(lengths []float64) {

	if len(lengths) == 0 {
		return
	}

	n := float64(len(lengths))
	mean := floats.Sum(lengths)/n - 1
	if mean < 1e-8 {
		mean = 1e-8
	}

	var vr float64
	for _, l := range lengths {
		d := (l - 1) - mean
		vr += d * d
	}
	vr /= n

	if vr > mean {
		nb.R = mean * mean / (vr - mean)
	}
	nb.P = nb.R / (nb.R + mean)
}

// Params returns a copy of the parameters.
func (nb *NegBinom) Params() []float64 {
	return []float64{nb.R, nb.P}
}

func (nb *NegBinom) SetParams(params []float64) {
	nb.R = params[0]
	nb.P = params[1]
}

func (nb *NegBinom) String() string {
	return fmt.Sprintf("nbd %.4f %.4f", nb.R, nb.P)
}
