// Command findhmr segments methylation count data into hypomethylated
// domains using a duration-aware two-state HMM, then filters the
// domains by permutation significance with FDR control.
package main

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"

	"github.com/epiverse/hdhmm/cpg"
	"github.com/epiverse/hdhmm/dist"
	"github.com/epiverse/hdhmm/domain"
	"github.com/epiverse/hdhmm/hdhmm"
)

const targetFDR = 0.01

// modelParams is the on-disk form of a trained model.
type modelParams struct {
	FgEmission []float64
	BgEmission []float64
	FgDuration []float64
	BgDuration []float64
}

func readParams(fname string) (*modelParams, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, err
	}
	defer gid.Close()

	var mp modelParams
	if err := gob.NewDecoder(gid).Decode(&mp); err != nil {
		return nil, err
	}

	return &mp, nil
}

func writeParams(fname string, mp *modelParams) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	return gob.NewEncoder(gid).Encode(mp)
}

func main() {

	parser := argparse.NewParser("findhmr",
		"Identifies hypomethylated regions in methylation count data using "+
			"a two-state HMM with explicit foreground duration, a permutation "+
			"test, and FDR control.")
	outfile := parser.String("o", "out", &argparse.Options{Help: "Output domain file (default: stdout)"})
	scoresFile := parser.String("s", "scores", &argparse.Options{Help: "Per-site posterior score file"})
	itr := parser.Int("i", "itr", &argparse.Options{Help: "Maximum EM iterations", Default: 10})
	maxlen := parser.Int("m", "maxlen", &argparse.Options{Help: "Longest foreground segment scored as a unit", Default: 200})
	desert := parser.Int("d", "desert", &argparse.Options{Help: "Gap size (bp) separating independent blocks", Default: 1000})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Print more run info"})
	nofdr := parser.Flag("f", "no-fdr-control", &argparse.Options{Help: "Report all domains regardless of significance"})
	paramsIn := parser.String("P", "params-in", &argparse.Options{Help: "Trained model file (skips training)"})
	paramsOut := parser.String("p", "params-out", &argparse.Options{Help: "Write the trained model to this file"})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Permutation RNG seed (0 seeds from the clock)"})
	input := parser.String("c", "counts", &argparse.Options{Required: true, Help: "methcounts-style input file"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}

	fid, err := os.Open(*input)
	if err != nil {
		logrus.Fatal(err)
	}
	sites, obs, err := cpg.Load(fid)
	fid.Close()
	if err != nil {
		logrus.Fatal(err)
	}

	sites, obs, dropped := cpg.RemoveZeroReads(sites, obs)
	if *verbose {
		logrus.Infof("loaded %d sites, removed %d with zero coverage", len(sites), dropped)
	}
	if len(sites) == 0 {
		logrus.Fatal("no usable sites in input")
	}

	resetPoints := cpg.ResetPoints(sites, *desert)

	cfg := hdhmm.DefaultConfig()
	cfg.MaxIter = *itr
	cfg.MaxLen = *maxlen
	cfg.Verbose = *verbose

	// Starting emissions from the mean coverage, foreground skewed low.
	var total float64
	for _, ob := range obs {
		total += ob.Meth + ob.Unmeth
	}
	meanReads := total / float64(len(obs))

	fgEmission := dist.NewBetaBin(0.33*meanReads, 0.67*meanReads)
	bgEmission := dist.NewBetaBin(0.67*meanReads, 0.33*meanReads)
	fgDuration := dist.NewNegBinom(2, 2.0/21.0)
	bgDuration := dist.NewGeometric(0.005)

	eng := hdhmm.New(obs, resetPoints, cfg)

	if *paramsIn != "" {
		mp, err := readParams(*paramsIn)
		if err != nil {
			logrus.Fatal(err)
		}
		fgEmission.SetParams(mp.FgEmission)
		bgEmission.SetParams(mp.BgEmission)
		fgDuration.SetParams(mp.FgDuration)
		bgDuration.SetParams(mp.BgDuration)
		eng.SetParameters(fgEmission, bgEmission, fgDuration, bgDuration)
	} else {
		eng.SetParameters(fgEmission, bgEmission, fgDuration, bgDuration)
		eng.BaumWelchTraining()
	}

	if *paramsOut != "" {
		mp := &modelParams{
			FgEmission: fgEmission.Params(),
			BgEmission: bgEmission.Params(),
			FgDuration: fgDuration.Params(),
			BgDuration: bgDuration.Params(),
		}
		if err := writeParams(*paramsOut, mp); err != nil {
			logrus.Fatal(err)
		}
	}

	eng.PosteriorDecoding()
	scores, classes := eng.PosteriorScores()

	domains := domain.Build(sites, obs, classes)
	observed := domain.Scores(domains)

	rngSeed := int64(*seed)
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	nullScores := domain.NullScores(sites, obs, resetPoints, cfg,
		fgEmission, bgEmission, fgDuration, bgDuration, rng)
	pvals := domain.AssignPValues(nullScores, observed)
	cutoff := domain.FDRCutoff(pvals, targetFDR)

	var kept []domain.Domain
	for i := range domains {
		domains[i].PValue = pvals[i]
		if pvals[i] < cutoff || *nofdr {
			domains[i].Name = fmt.Sprintf("HYPO%d", len(kept))
			kept = append(kept, domains[i])
		}
	}
	if *verbose {
		logrus.Infof("%d domains, %d retained at FDR %g", len(domains), len(kept), targetFDR)
	}

	out := os.Stdout
	if *outfile != "" {
		out, err = os.Create(*outfile)
		if err != nil {
			logrus.Fatal(err)
		}
		defer out.Close()
	}
	if err := domain.WriteDomains(out, kept); err != nil {
		logrus.Fatal(err)
	}

	if *scoresFile != "" {
		sf, err := os.Create(*scoresFile)
		if err != nil {
			logrus.Fatal(err)
		}
		defer sf.Close()
		if err := cpg.WriteScores(sf, sites, scores); err != nil {
			logrus.Fatal(err)
		}
	}
}
