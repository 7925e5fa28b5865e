// Package partition keeps the description-length bookkeeping of one group
// of nodes in an overlapping block partition.
//
// Every node is summarised by its mixture: the sorted set of blocks its
// half-edges carry, together with the labelled degree it has inside each of
// them. Nodes sharing a mixture are counted together.
package partition

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/mathutil"
)

// node is the membership of one node: blocks in increasing order and the
// labelled degree inside each.
type node struct {
	blocks []int
	deg    []halfedge.Degree
}

func (n node) key() string  { return blocksKey(n.blocks) }
func (n node) dkey() string { return degreeKey(n.deg) }

func (n node) clone() node {
	return node{
		blocks: append([]int(nil), n.blocks...),
		deg:    append([]halfedge.Degree(nil), n.deg...),
	}
}

// moved returns the membership after one half-edge of degree (kin, kout)
// leaves r for nr.
func (n node) moved(kin, kout, r, nr int) node {
	m := n.clone()

	i := sort.SearchInts(m.blocks, r)
	if i < len(m.blocks) && m.blocks[i] == r {
		m.deg[i].In -= kin
		m.deg[i].Out -= kout
		if m.deg[i].In+m.deg[i].Out <= 0 {
			m.blocks = append(m.blocks[:i], m.blocks[i+1:]...)
			m.deg = append(m.deg[:i], m.deg[i+1:]...)
		}
	}

	j := sort.SearchInts(m.blocks, nr)
	if j < len(m.blocks) && m.blocks[j] == nr {
		m.deg[j].In += kin
		m.deg[j].Out += kout
		return m
	}
	m.blocks = append(m.blocks, 0)
	copy(m.blocks[j+1:], m.blocks[j:])
	m.blocks[j] = nr
	m.deg = append(m.deg, halfedge.Degree{})
	copy(m.deg[j+1:], m.deg[j:])
	m.deg[j] = halfedge.Degree{In: kin, Out: kout}
	return m
}

func blocksKey(bs []int) string {
	var sb strings.Builder
	for i, r := range bs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(r))
	}
	return sb.String()
}

func degreeKey(ds []halfedge.Degree) string {
	var sb strings.Builder
	for i, d := range ds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(d.In))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(d.Out))
	}
	return sb.String()
}

// mixture aggregates every node sharing the same block set.
type mixture struct {
	blocks  []int
	n       int
	in, out []int          // degree sums, aligned with blocks
	hist    map[string]int // degree vector -> nodes
	lfHist  float64        // sum of ln c! over hist
	xlHist  float64        // sum of c ln c over hist
}

func newMixture(blocks []int) *mixture {
	return &mixture{
		blocks: append([]int(nil), blocks...),
		in:     make([]int, len(blocks)),
		out:    make([]int, len(blocks)),
		hist:   make(map[string]int),
	}
}

func (m *mixture) clone() *mixture {
	c := &mixture{
		blocks: append([]int(nil), m.blocks...),
		n:      m.n,
		in:     append([]int(nil), m.in...),
		out:    append([]int(nil), m.out...),
		hist:   make(map[string]int, len(m.hist)),
		lfHist: m.lfHist,
		xlHist: m.xlHist,
	}
	for k, v := range m.hist {
		c.hist[k] = v
	}
	return c
}

// Stats is the partition and degree accounting of one node group.
type Stats struct {
	directed bool

	nodes    map[int]node
	mixtures map[string]*mixture

	dhist   []int // mixture size -> nodes with a mixture of that size
	rCount  []int // block -> mixtures containing it
	em, ep  []int // block -> in / out degree totals
	actualB int   // blocks with rCount > 0

	numNodes  int
	halfEdges int
	lfMix     float64 // sum of ln n_bv! over mixtures
}

// NewStats returns empty statistics.
func NewStats(directed bool) *Stats {
	return &Stats{
		directed: directed,
		nodes:    make(map[int]node),
		mixtures: make(map[string]*mixture),
	}
}

// AddNode registers node u with its current membership. Nodes without
// half-edges are ignored.
func (s *Stats) AddNode(u int, ms []halfedge.Membership) {
	if len(ms) == 0 {
		return
	}
	nd := node{
		blocks: make([]int, len(ms)),
		deg:    make([]halfedge.Degree, len(ms)),
	}
	for i, m := range ms {
		nd.blocks[i] = m.Block
		nd.deg[i] = halfedge.Degree{In: m.In, Out: m.Out}
		s.halfEdges += m.In + m.Out
	}
	s.numNodes++
	s.insert(u, nd)
}

// Has reports whether u belongs to the group.
func (s *Stats) Has(u int) bool {
	_, ok := s.nodes[u]
	return ok
}

// NumNodes is the number of nodes in the group.
func (s *Stats) NumNodes() int { return s.numNodes }

// NumEdges is the number of edges carried by the group's half-edges.
func (s *Stats) NumEdges() int { return s.halfEdges / 2 }

// ActualB is the number of blocks occupied by the group.
func (s *Stats) ActualB() int { return s.actualB }

// NumMixtures is the number of distinct block sets in use.
func (s *Stats) NumMixtures() int { return len(s.mixtures) }

// Move accounts for one half-edge of u, with labelled degree (kin, kout),
// leaving block r for nr.
func (s *Stats) Move(u, kin, kout, r, nr int) {
	if r == nr {
		return
	}
	old, ok := s.nodes[u]
	if !ok {
		return
	}
	s.erase(u, old)
	s.insert(u, old.moved(kin, kout, r, nr))
}

func growTo(xs []int, n int) []int {
	for len(xs) < n {
		xs = append(xs, 0)
	}
	return xs
}

func at(xs []int, i int) int {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

func (s *Stats) ensureBlock(r int) {
	s.rCount = growTo(s.rCount, r+1)
	s.em = growTo(s.em, r+1)
	s.ep = growTo(s.ep, r+1)
}

func (s *Stats) insert(u int, nd node) {
	s.nodes[u] = nd

	k := nd.key()
	m, ok := s.mixtures[k]
	if !ok {
		m = newMixture(nd.blocks)
		s.mixtures[k] = m
		for _, r := range nd.blocks {
			s.ensureBlock(r)
			if s.rCount[r] == 0 {
				s.actualB++
			}
			s.rCount[r]++
		}
	}

	d := len(nd.blocks)
	s.dhist = growTo(s.dhist, d+1)
	s.dhist[d]++
	s.lfMix += mathutil.LFactorial(m.n+1) - mathutil.LFactorial(m.n)
	m.n++

	dk := nd.dkey()
	c := m.hist[dk]
	m.hist[dk] = c + 1
	m.lfHist += mathutil.LFactorial(c+1) - mathutil.LFactorial(c)
	m.xlHist += mathutil.XLogX(c+1) - mathutil.XLogX(c)

	for i, r := range nd.blocks {
		m.in[i] += nd.deg[i].In
		m.out[i] += nd.deg[i].Out
		s.em[r] += nd.deg[i].In
		s.ep[r] += nd.deg[i].Out
	}
}

func (s *Stats) erase(u int, nd node) {
	delete(s.nodes, u)

	k := nd.key()
	m := s.mixtures[k]

	dk := nd.dkey()
	c := m.hist[dk]
	if c <= 1 {
		delete(m.hist, dk)
	} else {
		m.hist[dk] = c - 1
	}
	m.lfHist += mathutil.LFactorial(c-1) - mathutil.LFactorial(c)
	m.xlHist += mathutil.XLogX(c-1) - mathutil.XLogX(c)

	for i, r := range nd.blocks {
		m.in[i] -= nd.deg[i].In
		m.out[i] -= nd.deg[i].Out
		s.em[r] -= nd.deg[i].In
		s.ep[r] -= nd.deg[i].Out
	}

	s.dhist[len(nd.blocks)]--
	s.lfMix += mathutil.LFactorial(m.n-1) - mathutil.LFactorial(m.n)
	m.n--
	if m.n > 0 {
		return
	}

	delete(s.mixtures, k)
	for _, r := range nd.blocks {
		s.rCount[r]--
		if s.rCount[r] == 0 {
			s.actualB--
		}
	}
}

// Clone returns a deep copy.
func (s *Stats) Clone() *Stats {
	c := &Stats{
		directed:  s.directed,
		nodes:     make(map[int]node, len(s.nodes)),
		mixtures:  make(map[string]*mixture, len(s.mixtures)),
		dhist:     append([]int(nil), s.dhist...),
		rCount:    append([]int(nil), s.rCount...),
		em:        append([]int(nil), s.em...),
		ep:        append([]int(nil), s.ep...),
		actualB:   s.actualB,
		numNodes:  s.numNodes,
		halfEdges: s.halfEdges,
		lfMix:     s.lfMix,
	}
	for u, nd := range s.nodes {
		c.nodes[u] = nd.clone()
	}
	for k, m := range s.mixtures {
		c.mixtures[k] = m.clone()
	}
	return c
}

func (s *Stats) sortedMixtureKeys() []string {
	keys := make([]string, 0, len(s.mixtures))
	for k := range s.mixtures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
