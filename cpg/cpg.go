// Package cpg loads methcounts-style per-site methylation records and
// prepares them for segmentation: format and order validation, zero
// coverage filtering, reset point derivation, and result writers.
package cpg

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/epiverse/hdhmm/hdhmm"
)

// Site is one CpG site.
type Site struct {
	Chrom string
	Pos   int
}

// FormatError reports a malformed input record.
type FormatError struct {
	Line int
	Text string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cpg: invalid record at line %d: %q", e.Line, e.Text)
}

// OrderError reports input that is not sorted by genomic position.
type OrderError struct {
	Line  int
	Chrom string
	Pos   int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("cpg: records not sorted at line %d (%s:%d)",
		e.Line, e.Chrom, e.Pos)
}

// Load reads records of the form
//
//	chrom  pos  strand  context  level  coverage
//
// and returns the sites with their methylated/unmethylated read counts.
// The methylated count is level*coverage rounded to the nearest integer.
// Records must be sorted by chromosome then position; a malformed or
// out-of-order record aborts the load.
func Load(r io.Reader) ([]Site, []hdhmm.Obs, error) {

	var sites []Site
	var obs []hdhmm.Obs

	var prevChrom string
	prevPos := -1

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineno := 0
	for sc.Scan() {
		lineno++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		f := strings.Fields(text)
		if len(f) != 6 {
			return nil, nil, &FormatError{Line: lineno, Text: text}
		}

		pos, err1 := strconv.Atoi(f[1])
		level, err2 := strconv.ParseFloat(f[4], 64)
		coverage, err3 := strconv.Atoi(f[5])
		if err1 != nil || err2 != nil || err3 != nil ||
			f[2] == "" || f[3] == "" || level < 0 || level > 1 || coverage < 0 {
			return nil, nil, &FormatError{Line: lineno, Text: text}
		}

		if f[0] < prevChrom || (f[0] == prevChrom && pos < prevPos) {
			return nil, nil, &OrderError{Line: lineno, Chrom: f[0], Pos: pos}
		}
		prevChrom = f[0]
		prevPos = pos

		meth := math.Round(level * float64(coverage))
		sites = append(sites, Site{Chrom: f[0], Pos: pos})
		obs = append(obs, hdhmm.Obs{Meth: meth, Unmeth: float64(coverage) - meth})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	return sites, obs, nil
}

// RemoveZeroReads drops sites with no coverage, in place, and returns
// the retained slices with the number of sites removed.
func RemoveZeroReads(sites []Site, obs []hdhmm.Obs) ([]Site, []hdhmm.Obs, int) {

	n := len(sites)
	j := 0
	for i := 0; i < n; i++ {
		if obs[i].Meth+obs[i].Unmeth > 0 {
			sites[j] = sites[i]
			obs[j] = obs[i]
			j++
		}
	}

	return sites[:j], obs[:j], n - j
}

// ResetPoints partitions the sites into independent blocks, splitting at
// chromosome changes and at gaps wider than desertSize bases.  The
// result starts at 0 and ends at len(sites).
func ResetPoints(sites []Site, desertSize int) []int {

	rp := []int{0}
	if len(sites) == 0 {
		return rp
	}

	for i := 1; i < len(sites); i++ {
		if sites[i].Chrom != sites[i-1].Chrom ||
			sites[i].Pos-sites[i-1].Pos > desertSize {
			rp = append(rp, i)
		}
	}

	return append(rp, len(sites))
}

// WriteScores writes one line per site with its foreground posterior.
func WriteScores(w io.Writer, sites []Site, scores []float64) error {

	bw := bufio.NewWriter(w)
	for i, s := range sites {
		fmt.Fprintf(bw, "%s\t%d\t%g\n", s.Chrom, s.Pos, scores[i])
	}

	return bw.Flush()
}
