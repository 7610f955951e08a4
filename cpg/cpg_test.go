package cpg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiverse/hdhmm/hdhmm"
)

func TestLoad(t *testing.T) {

	input := strings.Join([]string{
		"chr1\t100\t+\tCpG\t0.900000\t10",
		"chr1\t250\t-\tCpG\t0.333333\t3",
		"",
		"chr2\t50\t+\tCpG\t0.000000\t0",
	}, "\n")

	sites, obs, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, sites, 3)

	assert.Equal(t, Site{Chrom: "chr1", Pos: 100}, sites[0])
	assert.Equal(t, Site{Chrom: "chr2", Pos: 50}, sites[2])

	// Methylated counts are level*coverage rounded to nearest.
	assert.Equal(t, hdhmm.Obs{Meth: 9, Unmeth: 1}, obs[0])
	assert.Equal(t, hdhmm.Obs{Meth: 1, Unmeth: 2}, obs[1])
	assert.Equal(t, hdhmm.Obs{Meth: 0, Unmeth: 0}, obs[2])
}

func TestLoadFormatErrors(t *testing.T) {

	for _, bad := range []string{
		"chr1\t100\t+\tCpG\t0.5",             // missing coverage
		"chr1\t100\t+\tCpG\t1.5\t10",         // level above 1
		"chr1\t100\t+\tCpG\t-0.1\t10",        // negative level
		"chr1\t100\t+\tCpG\t0.5\t-3",         // negative coverage
		"chr1\tabc\t+\tCpG\t0.5\t10",         // non-numeric position
		"chr1\t100\t+\tCpG\t0.5\t10\textra",  // trailing field
	} {
		_, _, err := Load(strings.NewReader(bad))
		var fe *FormatError
		require.Error(t, err, bad)
		assert.True(t, errors.As(err, &fe), "want FormatError for %q, got %v", bad, err)
		assert.Equal(t, 1, fe.Line)
	}
}

func TestLoadOrderError(t *testing.T) {

	input := "chr1\t200\t+\tCpG\t0.5\t10\nchr1\t100\t+\tCpG\t0.5\t10\n"

	_, _, err := Load(strings.NewReader(input))
	var oe *OrderError
	require.Error(t, err)
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, 2, oe.Line)
	assert.Equal(t, 100, oe.Pos)
}

func TestRemoveZeroReads(t *testing.T) {

	sites := []Site{{"chr1", 1}, {"chr1", 2}, {"chr1", 3}, {"chr1", 4}}
	obs := []hdhmm.Obs{
		{Meth: 1, Unmeth: 1},
		{Meth: 0, Unmeth: 0},
		{Meth: 0, Unmeth: 0},
		{Meth: 0, Unmeth: 5},
	}

	sites, obs, dropped := RemoveZeroReads(sites, obs)
	assert.Equal(t, 2, dropped)
	require.Len(t, sites, 2)
	assert.Equal(t, []Site{{"chr1", 1}, {"chr1", 4}}, sites)
	assert.Equal(t, hdhmm.Obs{Meth: 0, Unmeth: 5}, obs[1])
}

func TestResetPoints(t *testing.T) {

	sites := []Site{
		{"chr1", 100},
		{"chr1", 600},
		{"chr1", 2000}, // desert gap
		{"chr1", 2100},
		{"chr2", 50}, // chromosome change
	}

	assert.Equal(t, []int{0, 2, 4, 5}, ResetPoints(sites, 1000))

	// A huge desert size still splits at the chromosome change.
	assert.Equal(t, []int{0, 4, 5}, ResetPoints(sites, 1<<30))

	assert.Equal(t, []int{0}, ResetPoints(nil, 1000))
}

func TestWriteScores(t *testing.T) {

	sites := []Site{{"chr1", 100}, {"chr1", 200}}
	var buf bytes.Buffer
	require.NoError(t, WriteScores(&buf, sites, []float64{0.25, 1}))

	assert.Equal(t, "chr1\t100\t0.25\nchr1\t200\t1\n", buf.String())
}
