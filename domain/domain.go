// Package domain builds contiguous foreground domains from decoded
// state labels and assesses their significance by a permutation test
// with FDR control.
package domain

import (
	"bufio"
	"fmt"
	"io"

	"github.com/epiverse/hdhmm/cpg"
	"github.com/epiverse/hdhmm/hdhmm"
)

// Domain is a maximal run of foreground-labeled sites.
type Domain struct {
	Chrom string
	Start int
	End   int
	Name  string

	// Sites is the number of constituent CpG sites.
	Sites int

	// Score is the sum of 1 - methylation fraction over the sites.
	Score float64

	PValue float64
}

// Build collapses consecutive foreground labels into domains, numbered
// in discovery order.  A domain still open at the last site is closed
// at that site's end.
func Build(sites []cpg.Site, obs []hdhmm.Obs, classes []bool) []Domain {

	var domains []Domain
	var cur Domain
	inDomain := false
	prevEnd := 0

	for i := range classes {
		if classes[i] {
			if !inDomain {
				inDomain = true
				cur = Domain{
					Chrom: sites[i].Chrom,
					Start: sites[i].Pos,
					Name:  fmt.Sprintf("HYPO%d", len(domains)),
				}
			}
			cur.Sites++
			m, u := obs[i].Meth, obs[i].Unmeth
			cur.Score += 1 - m/(m+u)
		} else if inDomain {
			inDomain = false
			cur.End = prevEnd
			domains = append(domains, cur)
		}
		prevEnd = sites[i].Pos + 1
	}
	if inDomain {
		cur.End = prevEnd
		domains = append(domains, cur)
	}

	return domains
}

// Scores returns the domain scores in discovery order.
func Scores(domains []Domain) []float64 {

	scores := make([]float64, len(domains))
	for i, d := range domains {
		scores[i] = d.Score
	}

	return scores
}

// WriteDomains writes one line per domain: chrom, start, end, name,
// site count, p-value.
func WriteDomains(w io.Writer, domains []Domain) error {

	bw := bufio.NewWriter(w)
	for _, d := range domains {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%s\t%d\t%g\n",
			d.Chrom, d.Start, d.End, d.Name, d.Sites, d.PValue)
	}

	return bw.Flush()
}
