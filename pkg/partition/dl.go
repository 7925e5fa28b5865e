package partition

import (
	"math"
	"sort"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/mathutil"
)

// DegDLOptions selects the degree description length variant.
type DegDLOptions struct {
	// Entropic uses the plain degree-sequence entropy instead of the
	// hierarchical encoding.
	Entropic bool
	// Alt takes the smaller of the partition-count and multiset encodings of
	// each degree sum.
	Alt bool
	// XiFast uses the asymptotic partition count.
	XiFast bool
}

// PartitionDL is the description length of the node mixtures.
func (s *Stats) PartitionDL() float64 {
	return s.partitionDL(s.dhist, s.actualB, s.lfMix)
}

func (s *Stats) partitionDL(dhist []int, actualB int, lfMix float64) float64 {
	if s.numNodes == 0 {
		return 0
	}
	var S float64
	D := 0
	for d, nd := range dhist {
		if nd <= 0 {
			continue
		}
		D = d
		lx := mathutil.LBinom(float64(actualB), float64(d))
		x := math.Exp(lx)
		ss := mathutil.LBinomCareful(x+float64(nd)-1, float64(nd))
		if math.IsInf(ss, 0) || math.IsNaN(ss) {
			ss = float64(nd)*lx - mathutil.LFactorial(nd)
		}
		S += ss
	}
	S += mathutil.LMultiset(D, s.numNodes)
	S += mathutil.LFactorial(s.numNodes) - lfMix
	return S
}

// EdgesDL is the description length of the block-level edge counts.
func (s *Stats) EdgesDL() float64 {
	return s.edgesDL(s.actualB)
}

func (s *Stats) edgesDL(actualB int) float64 {
	var nb int
	if s.directed {
		nb = actualB * actualB
	} else {
		nb = actualB * (actualB + 1) / 2
	}
	return mathutil.LMultiset(nb, s.NumEdges())
}

func (s *Stats) xi(n, m int, opts DegDLOptions) float64 {
	if opts.XiFast {
		return mathutil.XiFast(n, m)
	}
	return mathutil.Xi(n, m)
}

// mixtureDL is the degree description length of n nodes sharing a block set
// with the given degree sums and degree-vector histogram aggregates.
func (s *Stats) mixtureDL(n int, in, out []int, lfHist, xlHist float64, opts DegDLOptions) float64 {
	if n == 0 {
		return 0
	}
	if opts.Entropic {
		return mathutil.XLogX(n) - xlHist
	}

	var S1 float64
	for i := range in {
		S1 += s.xi(n, in[i], opts) + s.xi(n, out[i], opts)
	}
	if opts.Alt {
		var S2 float64
		for i := range in {
			S2 += mathutil.LMultiset(n, in[i]) + mathutil.LMultiset(n, out[i])
		}
		S1 = math.Min(S1, S2)
	}
	return S1 + mathutil.LFactorial(n) - lfHist
}

func blockDL(rCount, em, ep int) float64 {
	if rCount <= 0 {
		return 0
	}
	return mathutil.LMultiset(rCount, em) + mathutil.LMultiset(rCount, ep)
}

// DegDL is the description length of the labelled degree sequence.
func (s *Stats) DegDL(opts DegDLOptions) float64 {
	var S float64
	for _, k := range s.sortedMixtureKeys() {
		m := s.mixtures[k]
		S += s.mixtureDL(m.n, m.in, m.out, m.lfHist, m.xlHist, opts)
	}
	if opts.Entropic {
		return S
	}
	for r := range s.rCount {
		S += blockDL(s.rCount[r], s.em[r], s.ep[r])
	}
	return S
}

// change describes one half-edge move in terms of its effect on the
// mixtures and blocks, without applying it.
type change struct {
	r, nr      int
	kin, kout  int
	old, new   node
	om, nm     *mixture // nm is nil when the new block set is unused
	same       bool     // block set unchanged
	rCountDiff map[int]int
	actualB    int
}

func (s *Stats) change(u, kin, kout, r, nr int) (*change, bool) {
	old, ok := s.nodes[u]
	if !ok || r == nr {
		return nil, false
	}
	c := &change{
		r: r, nr: nr, kin: kin, kout: kout,
		old:        old,
		new:        old.moved(kin, kout, r, nr),
		rCountDiff: make(map[int]int),
		actualB:    s.actualB,
	}
	okey, nkey := c.old.key(), c.new.key()
	c.om = s.mixtures[okey]
	c.nm = s.mixtures[nkey]
	c.same = okey == nkey
	if c.same {
		return c, true
	}

	if c.om.n == 1 {
		for _, b := range c.om.blocks {
			c.rCountDiff[b]--
		}
	}
	if c.nm == nil {
		for _, b := range c.new.blocks {
			c.rCountDiff[b]++
		}
	}
	for b, d := range c.rCountDiff {
		before := at(s.rCount, b) > 0
		after := at(s.rCount, b)+d > 0
		switch {
		case before && !after:
			c.actualB--
		case !before && after:
			c.actualB++
		}
	}
	return c, true
}

// DeltaPartitionDL is the change of PartitionDL when one half-edge of u,
// of labelled degree (kin, kout), moves from r to nr.
func (s *Stats) DeltaPartitionDL(u, kin, kout, r, nr int) float64 {
	c, ok := s.change(u, kin, kout, r, nr)
	if !ok || c.same {
		return 0
	}

	dhist := growTo(append([]int(nil), s.dhist...), len(c.new.blocks)+1)
	dhist[len(c.old.blocks)]--
	dhist[len(c.new.blocks)]++

	nn := 0
	if c.nm != nil {
		nn = c.nm.n
	}
	lfMix := s.lfMix +
		mathutil.LFactorial(c.om.n-1) - mathutil.LFactorial(c.om.n) +
		mathutil.LFactorial(nn+1) - mathutil.LFactorial(nn)

	return s.partitionDL(dhist, c.actualB, lfMix) - s.PartitionDL()
}

// DeltaEdgesDL is the change of EdgesDL for the same move.
func (s *Stats) DeltaEdgesDL(u, kin, kout, r, nr int) float64 {
	c, ok := s.change(u, kin, kout, r, nr)
	if !ok || c.actualB == s.actualB {
		return 0
	}
	return s.edgesDL(c.actualB) - s.edgesDL(s.actualB)
}

// DeltaDegDL is the change of DegDL for the same move.
func (s *Stats) DeltaDegDL(u, kin, kout, r, nr int, opts DegDLOptions) float64 {
	c, ok := s.change(u, kin, kout, r, nr)
	if !ok {
		return 0
	}

	var dS float64
	if c.same {
		m := c.om
		in := append([]int(nil), m.in...)
		out := append([]int(nil), m.out...)
		i := sort.SearchInts(m.blocks, r)
		j := sort.SearchInts(m.blocks, nr)
		in[i] -= kin
		out[i] -= kout
		in[j] += kin
		out[j] += kout

		c1 := m.hist[c.old.dkey()]
		c2 := m.hist[c.new.dkey()]
		lfHist := m.lfHist +
			mathutil.LFactorial(c1-1) - mathutil.LFactorial(c1) +
			mathutil.LFactorial(c2+1) - mathutil.LFactorial(c2)
		xlHist := m.xlHist +
			mathutil.XLogX(c1-1) - mathutil.XLogX(c1) +
			mathutil.XLogX(c2+1) - mathutil.XLogX(c2)

		dS -= s.mixtureDL(m.n, m.in, m.out, m.lfHist, m.xlHist, opts)
		dS += s.mixtureDL(m.n, in, out, lfHist, xlHist, opts)
	} else {
		dS += s.leaveDelta(c.om, c.old, opts)
		dS += s.joinDelta(c.nm, c.new, opts)
	}

	if opts.Entropic {
		return dS
	}

	affected := map[int]struct{}{r: {}, nr: {}}
	for b := range c.rCountDiff {
		affected[b] = struct{}{}
	}
	blocks := make([]int, 0, len(affected))
	for b := range affected {
		blocks = append(blocks, b)
	}
	sort.Ints(blocks)

	for _, b := range blocks {
		rc, em, ep := at(s.rCount, b), at(s.em, b), at(s.ep, b)
		dS -= blockDL(rc, em, ep)

		rc += c.rCountDiff[b]
		switch b {
		case r:
			em -= kin
			ep -= kout
		case nr:
			em += kin
			ep += kout
		}
		dS += blockDL(rc, em, ep)
	}
	return dS
}

// leaveDelta is the change of m's term when nd leaves it.
func (s *Stats) leaveDelta(m *mixture, nd node, opts DegDLOptions) float64 {
	in := append([]int(nil), m.in...)
	out := append([]int(nil), m.out...)
	for i := range nd.deg {
		in[i] -= nd.deg[i].In
		out[i] -= nd.deg[i].Out
	}
	c := m.hist[nd.dkey()]
	lfHist := m.lfHist + mathutil.LFactorial(c-1) - mathutil.LFactorial(c)
	xlHist := m.xlHist + mathutil.XLogX(c-1) - mathutil.XLogX(c)

	return s.mixtureDL(m.n-1, in, out, lfHist, xlHist, opts) -
		s.mixtureDL(m.n, m.in, m.out, m.lfHist, m.xlHist, opts)
}

// joinDelta is the change of m's term when nd joins it; m may be nil.
func (s *Stats) joinDelta(m *mixture, nd node, opts DegDLOptions) float64 {
	if m == nil {
		in := make([]int, len(nd.deg))
		out := make([]int, len(nd.deg))
		for i, d := range nd.deg {
			in[i], out[i] = d.In, d.Out
		}
		return s.mixtureDL(1, in, out, 0, 0, opts)
	}

	in := append([]int(nil), m.in...)
	out := append([]int(nil), m.out...)
	for i := range nd.deg {
		in[i] += nd.deg[i].In
		out[i] += nd.deg[i].Out
	}
	c := m.hist[nd.dkey()]
	lfHist := m.lfHist + mathutil.LFactorial(c+1) - mathutil.LFactorial(c)
	xlHist := m.xlHist + mathutil.XLogX(c+1) - mathutil.XLogX(c)

	return s.mixtureDL(m.n+1, in, out, lfHist, xlHist, opts) -
		s.mixtureDL(m.n, m.in, m.out, m.lfHist, m.xlHist, opts)
}

// Membership returns u's membership as recorded by the statistics.
func (s *Stats) Membership(u int) []halfedge.Membership {
	nd, ok := s.nodes[u]
	if !ok {
		return nil
	}
	ms := make([]halfedge.Membership, len(nd.blocks))
	for i, r := range nd.blocks {
		ms[i] = halfedge.Membership{Block: r, In: nd.deg[i].In, Out: nd.deg[i].Out}
	}
	return ms
}
