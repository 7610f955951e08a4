package domain

import (
	"math"
	"math/rand"
	"sort"

	"github.com/epiverse/hdhmm/cpg"
	"github.com/epiverse/hdhmm/hdhmm"
)

// Shuffle permutes the observations in place using the given source.
// Callers control the seed, so permutation runs are reproducible.
func Shuffle(obs []hdhmm.Obs, rng *rand.Rand) {
	rng.Shuffle(len(obs), func(i, j int) {
		obs[i], obs[j] = obs[j], obs[i]
	})
}

// NullScores decodes a shuffled copy of the observations with the
// already-trained models and returns the sorted domain scores of the
// permuted data.  The models are read, never refit.
func NullScores(sites []cpg.Site, obs []hdhmm.Obs, resetPoints []int, cfg hdhmm.Config,
	fgEmission, bgEmission hdhmm.EmissionModel,
	fgDuration, bgDuration hdhmm.DurationModel, rng *rand.Rand) []float64 {

	shuffled := make([]hdhmm.Obs, len(obs))
	copy(shuffled, obs)
	Shuffle(shuffled, rng)

	eng := hdhmm.New(shuffled, resetPoints, cfg)
	eng.SetParameters(fgEmission, bgEmission, fgDuration, bgDuration)
	eng.PosteriorDecoding()
	_, classes := eng.PosteriorScores()

	scores := Scores(Build(sites, shuffled, classes))
	sort.Float64s(scores)

	return scores
}

// AssignPValues gives each observed score the fraction of null scores
// strictly greater than it.  nullScores must be sorted ascending; ties
// with a null score do not count against the observed score.
func AssignPValues(nullScores, observed []float64) []float64 {

	n := float64(len(nullScores))
	if n == 0 {
		n = 1
	}

	pvals := make([]float64, len(observed))
	for i, s := range observed {
		ub := sort.Search(len(nullScores), func(j int) bool {
			return nullScores[j] > s
		})
		pvals[i] = float64(len(nullScores)-ub) / n
	}

	return pvals
}

// FDRCutoff returns the p-value threshold for the target FDR via the
// Benjamini-Hochberg step-up rule: with the p-values sorted ascending,
// advance while the next p-value is below fdr*(i+1)/n and return the
// value just before the bound first fails.  Domains pass the filter
// when their p-value is strictly below the cutoff.
func FDRCutoff(pvals []float64, fdr float64) float64 {

	if fdr <= 0 {
		return math.MaxFloat64
	}
	if fdr > 1 {
		return math.SmallestNonzeroFloat64
	}
	if len(pvals) == 0 {
		return math.MaxFloat64
	}

	local := append([]float64(nil), pvals...)
	sort.Float64s(local)

	n := float64(len(local))
	i := 0
	for i < len(local)-1 && local[i+1] < fdr*float64(i+1)/n {
		i++
	}

	return local[i]
}
