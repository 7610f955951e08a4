package main

import (
	"bytes"
	"testing"

	"github.com/epiverse/hdhmm/cpg"
)

// Generated data must parse back through the loader, in order, with the
// expected site count and spacing.
func TestGeneratedDataLoads(t *testing.T) {

	ds := &dataset{
		chrom:     "chrT",
		nblocks:   4,
		blocksize: 25,
		spacing:   100,
		coverage:  30,
		fgLevel:   0.1,
		bgLevel:   0.9,
	}

	var buf bytes.Buffer
	if err := ds.write(&buf, 17); err != nil {
		t.Fatal(err)
	}

	sites, obs, err := cpg.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 100 {
		t.Fatalf("got %d sites, want 100", len(sites))
	}

	for i, s := range sites {
		if s.Chrom != "chrT" {
			t.Fatalf("site %d on %s", i, s.Chrom)
		}
		if s.Pos != 1000+100*i {
			t.Fatalf("site %d at %d, want %d", i, s.Pos, 1000+100*i)
		}
		if obs[i].Meth < 0 || obs[i].Unmeth < 0 {
			t.Fatalf("site %d has negative counts", i)
		}
	}
}

// The same seed must reproduce the same dataset.
func TestGeneratorDeterministic(t *testing.T) {

	ds := &dataset{chrom: "chr1", nblocks: 2, blocksize: 10, spacing: 50,
		coverage: 20, fgLevel: 0.2, bgLevel: 0.8}

	var a, b bytes.Buffer
	if err := ds.write(&a, 5); err != nil {
		t.Fatal(err)
	}
	if err := ds.write(&b, 5); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("same seed produced different data")
	}
}
