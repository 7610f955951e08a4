package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsRoundTrip(t *testing.T) {

	fname := filepath.Join(t.TempDir(), "params.gob.gz")

	mp := &modelParams{
		FgEmission: []float64{0.5215, 1.4618},
		BgEmission: []float64{2.6351, 0.6402},
		FgDuration: []float64{2.2, 0.0952},
		BgDuration: []float64{0.0047},
	}

	require.NoError(t, writeParams(fname, mp))

	got, err := readParams(fname)
	require.NoError(t, err)
	assert.Equal(t, mp, got)
}

func TestReadParamsMissingFile(t *testing.T) {

	_, err := readParams(filepath.Join(t.TempDir(), "absent.gob.gz"))
	assert.Error(t, err)
}
