// Package validation compares node partitions, such as the overlap splits
// of two block model states.
package validation

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Comparison is the agreement between two node partitions. Information
// quantities are in nats.
type Comparison struct {
	NMI        float64    `json:"nmi" yaml:"nmi"`
	MI         float64    `json:"mutual_information" yaml:"mutual_information"`
	Entropy    [2]float64 `json:"entropy" yaml:"entropy"`
	Groups     [2]int     `json:"groups" yaml:"groups"`
	Similarity string     `json:"similarity" yaml:"similarity"`
}

// NormalizedMutualInfo returns the mutual information of a and b divided by
// the mean of their entropies, in [0, 1]. Two single-group partitions have
// NMI 1.
func NormalizedMutualInfo(a, b []int) (float64, error) {
	c, err := Compare(a, b)
	if err != nil {
		return 0, err
	}
	return c.NMI, nil
}

// Compare builds the contingency table of a and b.
func Compare(a, b []int) (Comparison, error) {
	if len(a) != len(b) {
		return Comparison{}, errors.Errorf("partitions have %d and %d nodes", len(a), len(b))
	}
	n := len(a)
	if n == 0 {
		return Comparison{NMI: 1, Similarity: similarity(1)}, nil
	}

	joint := make(map[[2]int]int)
	ca := make(map[int]int)
	cb := make(map[int]int)
	for i := range a {
		joint[[2]int{a[i], b[i]}]++
		ca[a[i]]++
		cb[b[i]]++
	}

	nf := float64(n)
	terms := make([]float64, 0, len(joint))
	for k, nij := range joint {
		x := float64(nij)
		terms = append(terms, x/nf*math.Log(x*nf/(float64(ca[k[0]])*float64(cb[k[1]]))))
	}

	c := Comparison{
		MI:      math.Max(0, floats.Sum(terms)),
		Entropy: [2]float64{entropy(ca, nf), entropy(cb, nf)},
		Groups:  [2]int{len(ca), len(cb)},
	}
	mean := (c.Entropy[0] + c.Entropy[1]) / 2
	if mean == 0 {
		c.NMI = 1
	} else {
		c.NMI = math.Min(1, c.MI/mean)
	}
	c.Similarity = similarity(c.NMI)
	return c, nil
}

func entropy(counts map[int]int, n float64) float64 {
	p := make([]float64, 0, len(counts))
	for _, k := range counts {
		p = append(p, float64(k)/n)
	}
	return stat.Entropy(p)
}

func similarity(nmi float64) string {
	switch {
	case nmi > 0.7:
		return "high"
	case nmi > 0.4:
		return "moderate"
	}
	return "low"
}
