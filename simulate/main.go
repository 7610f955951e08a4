// Command simulate writes a synthetic methcounts-style dataset with
// alternating background/foreground methylation blocks, for testing and
// demonstration of findhmr.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// dataset holds the simulation settings.
type dataset struct {
	chrom     string
	nblocks   int
	blocksize int
	spacing   int
	coverage  int
	fgLevel   float64
	bgLevel   float64
}

// write generates the records and writes them in methcounts form.
func (ds *dataset) write(w io.Writer, seed uint64) error {

	src := exprand.NewSource(seed)
	pois := distuv.Poisson{Lambda: float64(ds.coverage), Src: src}

	bw := bufio.NewWriter(w)

	pos := 1000
	for b := 0; b < ds.nblocks; b++ {

		level := ds.bgLevel
		if b%2 == 1 {
			level = ds.fgLevel
		}

		for j := 0; j < ds.blocksize; j++ {
			cover := int(pois.Rand())

			var lvl float64
			if cover > 0 {
				bin := distuv.Binomial{N: float64(cover), P: level, Src: src}
				lvl = bin.Rand() / float64(cover)
			}

			fmt.Fprintf(bw, "%s\t%d\t+\tCpG\t%.6f\t%d\n", ds.chrom, pos, lvl, cover)
			pos += ds.spacing
		}
	}

	return bw.Flush()
}

func main() {

	var outname, chrom string
	flag.StringVar(&outname, "outname", "", "Output file name")
	flag.StringVar(&chrom, "chrom", "chr1", "Chromosome name for the simulated sites")

	var nblocks, blocksize, spacing, coverage int
	flag.IntVar(&nblocks, "nblocks", 20, "Number of alternating background/foreground blocks")
	flag.IntVar(&blocksize, "blocksize", 50, "Sites per block")
	flag.IntVar(&spacing, "spacing", 100, "Distance in bp between adjacent sites")
	flag.IntVar(&coverage, "coverage", 30, "Mean read coverage per site")

	var fgLevel, bgLevel float64
	flag.Float64Var(&fgLevel, "fglevel", 0.1, "Methylation level inside foreground blocks")
	flag.Float64Var(&bgLevel, "bglevel", 0.9, "Methylation level outside foreground blocks")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "RNG seed (0 seeds from the clock)")
	flag.Parse()

	if outname == "" {
		panic("'outname' is required")
	}
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}

	ds := &dataset{
		chrom:     chrom,
		nblocks:   nblocks,
		blocksize: blocksize,
		spacing:   spacing,
		coverage:  coverage,
		fgLevel:   fgLevel,
		bgLevel:   bgLevel,
	}

	fid, err := os.Create(outname)
	if err != nil {
		panic(err)
	}
	defer fid.Close()

	if err := ds.write(fid, uint64(seed)); err != nil {
		panic(err)
	}
}
