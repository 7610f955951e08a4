package domain_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiverse/hdhmm/cpg"
	"github.com/epiverse/hdhmm/dist"
	"github.com/epiverse/hdhmm/domain"
	"github.com/epiverse/hdhmm/hdhmm"
)

func sitesAt(chrom string, positions ...int) []cpg.Site {
	sites := make([]cpg.Site, len(positions))
	for i, p := range positions {
		sites[i] = cpg.Site{Chrom: chrom, Pos: p}
	}
	return sites
}

func TestBuildDomains(t *testing.T) {

	sites := sitesAt("chr1", 100, 200, 300, 400, 500)
	obs := []hdhmm.Obs{
		{Meth: 5, Unmeth: 5},
		{Meth: 1, Unmeth: 9},
		{Meth: 2, Unmeth: 8},
		{Meth: 9, Unmeth: 1},
		{Meth: 0, Unmeth: 10},
	}
	classes := []bool{false, true, true, false, true}

	domains := domain.Build(sites, obs, classes)
	require.Len(t, domains, 2)

	assert.Equal(t, "HYPO0", domains[0].Name)
	assert.Equal(t, 200, domains[0].Start)
	assert.Equal(t, 301, domains[0].End)
	assert.Equal(t, 2, domains[0].Sites)
	assert.InDelta(t, 0.9+0.8, domains[0].Score, 1e-12)

	// Trailing domain is closed at the final site's end.
	assert.Equal(t, "HYPO1", domains[1].Name)
	assert.Equal(t, 500, domains[1].Start)
	assert.Equal(t, 501, domains[1].End)
	assert.Equal(t, 1, domains[1].Sites)
	assert.InDelta(t, 1.0, domains[1].Score, 1e-12)
}

func TestBuildDomainsDisjointOrderedComplete(t *testing.T) {

	rng := rand.New(rand.NewSource(3))

	positions := make([]int, 200)
	classes := make([]bool, 200)
	obs := make([]hdhmm.Obs, 200)
	for i := range positions {
		positions[i] = 1000 + 50*i
		classes[i] = rng.Float64() < 0.4
		obs[i] = hdhmm.Obs{Meth: float64(1 + rng.Intn(9)), Unmeth: float64(1 + rng.Intn(9))}
	}
	sites := sitesAt("chr2", positions...)

	domains := domain.Build(sites, obs, classes)

	var nfg int
	for _, c := range classes {
		if c {
			nfg++
		}
	}

	total := 0
	for i, d := range domains {
		total += d.Sites
		if i > 0 {
			assert.GreaterOrEqual(t, d.Start, domains[i-1].End, "domains overlap")
		}
	}
	assert.Equal(t, nfg, total, "domain sites must cover every foreground label")
}

func TestBuildNoForeground(t *testing.T) {

	sites := sitesAt("chr1", 10, 20, 30, 40)
	obs := []hdhmm.Obs{{Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}}
	classes := []bool{false, false, false, false}

	assert.Empty(t, domain.Build(sites, obs, classes))
}

func TestAssignPValuesTieConvention(t *testing.T) {

	null := []float64{1, 2, 2, 3}

	// Only null scores strictly greater than the observation count.
	pvals := domain.AssignPValues(null, []float64{2, 0.5, 3, 4})
	assert.Equal(t, []float64{0.25, 1, 0, 0}, pvals)
}

func TestAssignPValuesEmptyNull(t *testing.T) {

	pvals := domain.AssignPValues(nil, []float64{1, 2})
	assert.Equal(t, []float64{0, 0}, pvals)
}

func TestFDRCutoffSentinels(t *testing.T) {

	pvals := []float64{0.2, 0.01}
	assert.Equal(t, math.MaxFloat64, domain.FDRCutoff(pvals, 0))
	assert.Equal(t, math.MaxFloat64, domain.FDRCutoff(pvals, -1))
	assert.Equal(t, math.SmallestNonzeroFloat64, domain.FDRCutoff(pvals, 1.5))
}

func TestFDRCutoffStepUp(t *testing.T) {

	pvals := []float64{0.3, 0.008, 0.041, 0.001, 0.039}

	// Sorted: .001 .008 .039 .041 .3; bounds at q=0.05 are
	// .01 .02 .03 .04 .05, so the step-up stops after the second value.
	assert.InDelta(t, 0.008, domain.FDRCutoff(pvals, 0.05), 1e-15)
}

func TestFDRCutoffMonotone(t *testing.T) {

	pvals := []float64{0.001, 0.004, 0.02, 0.08, 0.3, 0.6}

	prev := math.MaxFloat64
	for _, q := range []float64{0.5, 0.2, 0.1, 0.05, 0.01, 0.001} {
		c := domain.FDRCutoff(pvals, q)
		assert.LessOrEqual(t, c, prev, "cutoff must not increase as the target FDR decreases")
		prev = c
	}
}

func TestShuffleDeterminism(t *testing.T) {

	base := make([]hdhmm.Obs, 100)
	for i := range base {
		base[i] = hdhmm.Obs{Meth: float64(i), Unmeth: float64(100 - i)}
	}

	a := append([]hdhmm.Obs(nil), base...)
	b := append([]hdhmm.Obs(nil), base...)
	domain.Shuffle(a, rand.New(rand.NewSource(99)))
	domain.Shuffle(b, rand.New(rand.NewSource(99)))

	assert.Equal(t, a, b)
	assert.NotEqual(t, base, a)
}

func decodeModels() (*dist.BetaBin, *dist.BetaBin, *dist.NegBinom, *dist.Geometric) {
	return dist.NewBetaBin(9, 1), dist.NewBetaBin(1, 9),
		dist.NewNegBinom(2, 2.0/21.0), dist.NewGeometric(0.1)
}

func TestNullScoresDeterministicForSeed(t *testing.T) {

	rng := rand.New(rand.NewSource(5))
	positions := make([]int, 60)
	obs := make([]hdhmm.Obs, 60)
	for i := range obs {
		positions[i] = 100 * (i + 1)
		cover := 10 + rng.Intn(20)
		meth := rng.Intn(cover + 1)
		obs[i] = hdhmm.Obs{Meth: float64(meth), Unmeth: float64(cover - meth)}
	}
	sites := sitesAt("chr1", positions...)
	resetPoints := []int{0, 60}

	fgE, bgE, fgD, bgD := decodeModels()
	cfg := hdhmm.DefaultConfig()

	a := domain.NullScores(sites, obs, resetPoints, cfg, fgE, bgE, fgD, bgD,
		rand.New(rand.NewSource(123)))
	b := domain.NullScores(sites, obs, resetPoints, cfg, fgE, bgE, fgD, bgD,
		rand.New(rand.NewSource(123)))

	assert.Equal(t, a, b)
	assert.True(t, sort.Float64sAreSorted(a))
}

// Three strongly foreground-like sites decode to a single domain;
// an all-background block produces none.
func TestStrongSignalSingleDomain(t *testing.T) {

	sites := sitesAt("chr1", 100, 200, 300)
	obs := []hdhmm.Obs{{Meth: 9, Unmeth: 1}, {Meth: 9, Unmeth: 1}, {Meth: 9, Unmeth: 1}}

	fgE, bgE, fgD, bgD := decodeModels()
	eng := hdhmm.New(obs, []int{0, 3}, hdhmm.DefaultConfig())
	eng.SetParameters(fgE, bgE, fgD, bgD)
	eng.PosteriorDecoding()
	_, classes := eng.PosteriorScores()

	domains := domain.Build(sites, obs, classes)
	require.Len(t, domains, 1)
	assert.Equal(t, 3, domains[0].Sites)
	assert.Equal(t, 100, domains[0].Start)
	assert.Equal(t, 301, domains[0].End)

	// All-background input yields no domains at all.
	bgObs := []hdhmm.Obs{{Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}, {Meth: 1, Unmeth: 9}}
	bgEng := hdhmm.New(bgObs, []int{0, 4}, hdhmm.DefaultConfig())
	bgEng.SetParameters(fgE, bgE, fgD, bgD)
	bgEng.PosteriorDecoding()
	_, bgClasses := bgEng.PosteriorScores()
	assert.Empty(t, domain.Build(sitesAt("chr1", 10, 20, 30, 40), bgObs, bgClasses))
}
