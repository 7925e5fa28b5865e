package halfedge

import (
	"sort"

	"github.com/gilchrisn/overlap-blockmodel/pkg/mathutil"
	"github.com/gilchrisn/overlap-blockmodel/pkg/sampler"
)

// Degree is a labelled (in, out) degree.
type Degree struct {
	In, Out int
}

// Membership is the degree a node carries inside one block.
type Membership struct {
	Block   int
	In, Out int
}

// BlockPair keys parallel-edge histograms. Undirected pairs are stored with
// R <= S.
type BlockPair struct {
	R, S int
}

// Index tracks, for every block, which nodes have half-edges in it and with
// which labelled degree, plus the block-pair histogram of every bundle of
// parallel edges.
type Index struct {
	g *Graph

	blockNodes     []map[NodeID]Degree // r -> node -> degree inside r
	nodeBlocks     []map[int]Degree    // node -> r -> degree inside r
	blockHalfEdges []int

	mi      []int // half-edge -> bundle, or -1
	bundles []map[BlockPair]int
}

// NewIndex builds the index for the half-edge labels b over numBlocks
// blocks. Labels must lie in [0, numBlocks).
func NewIndex(g *Graph, b []int, numBlocks int) *Index {
	idx := &Index{
		g:          g,
		nodeBlocks: make([]map[int]Degree, g.NumNodes()),
		mi:         make([]int, g.NumHalfEdges()),
	}
	idx.EnsureBlocks(numBlocks)
	for u := range idx.nodeBlocks {
		idx.nodeBlocks[u] = make(map[int]Degree)
	}

	for h := HalfEdgeID(0); int(h) < g.NumHalfEdges(); h++ {
		idx.mi[h] = -1
		idx.addDegree(h, b[h])
	}

	idx.buildBundles(b)
	return idx
}

func (idx *Index) buildBundles(b []int) {
	type nodePair struct{ u, v NodeID }
	groups := make(map[nodePair][]EdgeID)
	var order []nodePair
	for e := EdgeID(0); int(e) < idx.g.NumEdges(); e++ {
		p := nodePair{idx.g.Source(e), idx.g.Target(e)}
		if !idx.g.Directed() && p.v < p.u {
			p.u, p.v = p.v, p.u
		}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], e)
	}

	for _, p := range order {
		es := groups[p]
		if len(es) < 2 {
			continue
		}
		m := len(idx.bundles)
		h := make(map[BlockPair]int)
		for _, e := range es {
			idx.mi[SourceHalf(e)] = m
			idx.mi[TargetHalf(e)] = m
			h[idx.pair(b[SourceHalf(e)], b[TargetHalf(e)])]++
		}
		idx.bundles = append(idx.bundles, h)
	}
}

func (idx *Index) pair(r, s int) BlockPair {
	if !idx.g.Directed() && r > s {
		r, s = s, r
	}
	return BlockPair{r, s}
}

// EnsureBlocks grows the per-block tables to hold at least n blocks.
func (idx *Index) EnsureBlocks(n int) {
	for len(idx.blockNodes) < n {
		idx.blockNodes = append(idx.blockNodes, make(map[NodeID]Degree))
		idx.blockHalfEdges = append(idx.blockHalfEdges, 0)
	}
}

// NumBlocks is the number of block ids known to the index.
func (idx *Index) NumBlocks() int { return len(idx.blockNodes) }

// Graph returns the underlying half-edge graph.
func (idx *Index) Graph() *Graph { return idx.g }

// Node returns the node owning h.
func (idx *Index) Node(h HalfEdgeID) NodeID { return idx.g.Node(h) }

// HalfEdges returns the half-edges of node u.
func (idx *Index) HalfEdges(u NodeID) []HalfEdgeID { return idx.g.HalfEdges(u) }

// NumNodes is the number of original nodes.
func (idx *Index) NumNodes() int { return idx.g.NumNodes() }

// OutNeighbour returns the half-edge h points to, or Null.
func (idx *Index) OutNeighbour(h HalfEdgeID) HalfEdgeID { return idx.g.OutNeighbour(h) }

// InNeighbour returns the half-edge pointing to h, or Null.
func (idx *Index) InNeighbour(h HalfEdgeID) HalfEdgeID { return idx.g.InNeighbour(h) }

// nodesIn returns the node table of r, or nil for blocks not created yet.
func (idx *Index) nodesIn(r int) map[NodeID]Degree {
	if r < 0 || r >= len(idx.blockNodes) {
		return nil
	}
	return idx.blockNodes[r]
}

// BlockSize is the number of distinct nodes with a half-edge in r.
func (idx *Index) BlockSize(r int) int { return len(idx.nodesIn(r)) }

// HalfEdgeCount is the number of half-edges labelled r.
func (idx *Index) HalfEdgeCount(r int) int {
	if r < 0 || r >= len(idx.blockHalfEdges) {
		return 0
	}
	return idx.blockHalfEdges[r]
}

// halfDegree returns (kin, kout) of h, or the supplied cached values when
// at least one of them is non-zero.
func (idx *Index) halfDegree(h HalfEdgeID, kin, kout int) (int, int) {
	if kin+kout > 0 {
		return kin, kout
	}
	return idx.g.InDegree(h), idx.g.OutDegree(h)
}

// VirtualRemoveSize is the size r would have without h. kin and kout may
// carry h's cached degree; pass zeros to recompute.
func (idx *Index) VirtualRemoveSize(h HalfEdgeID, r, kin, kout int) int {
	kin, kout = idx.halfDegree(h, kin, kout)
	nodes := idx.nodesIn(r)
	n := len(nodes)
	if d, ok := nodes[idx.g.Node(h)]; ok && d.In == kin && d.Out == kout {
		n--
	}
	return n
}

// VirtualAddSize is the size r would have with h added.
func (idx *Index) VirtualAddSize(h HalfEdgeID, r int) int {
	nodes := idx.nodesIn(r)
	n := len(nodes)
	if _, ok := nodes[idx.g.Node(h)]; !ok {
		n++
	}
	return n
}

func (idx *Index) addDegree(h HalfEdgeID, r int) {
	idx.EnsureBlocks(r + 1)
	u := idx.g.Node(h)
	kin, kout := idx.g.InDegree(h), idx.g.OutDegree(h)

	d := idx.blockNodes[r][u]
	d.In += kin
	d.Out += kout
	idx.blockNodes[r][u] = d
	idx.nodeBlocks[u][r] = d
	idx.blockHalfEdges[r]++
}

func (idx *Index) removeDegree(h HalfEdgeID, r int) {
	u := idx.g.Node(h)
	kin, kout := idx.g.InDegree(h), idx.g.OutDegree(h)

	d := idx.blockNodes[r][u]
	d.In -= kin
	d.Out -= kout
	if d.In+d.Out == 0 {
		delete(idx.blockNodes[r], u)
		delete(idx.nodeBlocks[u], r)
	} else {
		idx.blockNodes[r][u] = d
		idx.nodeBlocks[u][r] = d
	}
	idx.blockHalfEdges[r]--
}

// bundlePair is the block pair of h's edge when h sits in block hr.
func (idx *Index) bundlePair(h HalfEdgeID, hr int, b []int) BlockPair {
	if w := idx.g.OutNeighbour(h); w != Null {
		return idx.pair(hr, b[w])
	}
	w := idx.g.InNeighbour(h)
	return idx.pair(b[w], hr)
}

// AddHalfEdge records h as a member of r. b supplies the neighbour's block.
func (idx *Index) AddHalfEdge(h HalfEdgeID, r int, b []int) {
	idx.addDegree(h, r)

	if m := idx.mi[h]; m != -1 {
		idx.bundles[m][idx.bundlePair(h, r, b)]++
	}
}

// RemoveHalfEdge drops h from r. b supplies the neighbour's block.
func (idx *Index) RemoveHalfEdge(h HalfEdgeID, r int, b []int) {
	idx.removeDegree(h, r)

	if m := idx.mi[h]; m != -1 {
		hist := idx.bundles[m]
		k := idx.bundlePair(h, r, b)
		hist[k]--
		if hist[k] <= 0 {
			delete(hist, k)
		}
	}
}

// degreeIn returns node u's labelled degree inside r.
func (idx *Index) degreeIn(u NodeID, r int) Degree {
	return idx.nodesIn(r)[u]
}

// VirtualMoveDS is the change of the degree-correction term
// -sum ln(k_in!) - sum ln(k_out!) when h moves from r to nr.
func (idx *Index) VirtualMoveDS(h HalfEdgeID, r, nr, kin, kout int) float64 {
	kin, kout = idx.halfDegree(h, kin, kout)
	u := idx.g.Node(h)

	sk := func(d Degree, din, dout int) float64 {
		return -mathutil.LFactorial(d.In+din) - mathutil.LFactorial(d.Out+dout)
	}

	var dS float64
	dr := idx.degreeIn(u, r)
	dS -= sk(dr, 0, 0)
	dS += sk(dr, -kin, -kout)

	dnr := idx.degreeIn(u, nr)
	dS -= sk(dnr, 0, 0)
	dS += sk(dnr, kin, kout)
	return dS
}

// VirtualMoveParallelDS is the change of the parallel-edge term
// sum ln(c!) when h moves from r to nr.
func (idx *Index) VirtualMoveParallelDS(h HalfEdgeID, r, nr int, b []int) float64 {
	m := idx.mi[h]
	if m == -1 || r == nr {
		return 0
	}
	hist := idx.bundles[m]
	from := idx.bundlePair(h, r, b)
	to := idx.bundlePair(h, nr, b)
	if from == to {
		return 0
	}

	c := hist[from]
	nc := hist[to]
	return mathutil.LFactorial(c-1) + mathutil.LFactorial(nc+1) -
		mathutil.LFactorial(c) - mathutil.LFactorial(nc)
}

// ParallelBundles returns, per bundle of parallel edges, the histogram of
// block pairs its edges land on. The maps must not be modified.
func (idx *Index) ParallelBundles() []map[BlockPair]int { return idx.bundles }

// SampleHalfEdge picks one of u's half-edges uniformly.
func (idx *Index) SampleHalfEdge(u NodeID, rng sampler.RNG) HalfEdgeID {
	hs := idx.g.HalfEdges(u)
	return hs[rng.Intn(len(hs))]
}

// NodeMembership returns u's blocks in increasing order with the labelled
// degree u has in each.
func (idx *Index) NodeMembership(u NodeID) []Membership {
	ms := make([]Membership, 0, len(idx.nodeBlocks[u]))
	for r, d := range idx.nodeBlocks[u] {
		ms = append(ms, Membership{Block: r, In: d.In, Out: d.Out})
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Block < ms[j].Block })
	return ms
}

// NodeBlocks returns u's blocks in increasing order.
func (idx *Index) NodeBlocks(u NodeID) []int {
	rs := make([]int, 0, len(idx.nodeBlocks[u]))
	for r := range idx.nodeBlocks[u] {
		rs = append(rs, r)
	}
	sort.Ints(rs)
	return rs
}

// Clone returns a deep copy sharing the immutable graph.
func (idx *Index) Clone() *Index {
	c := &Index{
		g:              idx.g,
		blockNodes:     make([]map[NodeID]Degree, len(idx.blockNodes)),
		nodeBlocks:     make([]map[int]Degree, len(idx.nodeBlocks)),
		blockHalfEdges: append([]int(nil), idx.blockHalfEdges...),
		mi:             append([]int(nil), idx.mi...),
		bundles:        make([]map[BlockPair]int, len(idx.bundles)),
	}
	for r, m := range idx.blockNodes {
		cm := make(map[NodeID]Degree, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.blockNodes[r] = cm
	}
	for u, m := range idx.nodeBlocks {
		cm := make(map[int]Degree, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.nodeBlocks[u] = cm
	}
	for i, m := range idx.bundles {
		cm := make(map[BlockPair]int, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.bundles[i] = cm
	}
	return c
}
