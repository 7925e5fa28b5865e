// Package blockmodel implements the incremental state of an overlapping,
// degree-corrected stochastic block model.
//
// Every node of the graph is split into one half-edge per incident edge end
// and each half-edge carries its own block label, so a node belongs to all
// blocks its half-edges carry. The State keeps the block-level edge counts,
// degree sums and sizes needed to price a single half-edge move without
// committing it, and to commit it in constant time per incident edge.
package blockmodel

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/partition"
)

// DegDLOptions selects the degree description length variant.
type DegDLOptions = partition.DegDLOptions

// MoveEvent describes a committed half-edge move.
type MoveEvent struct {
	Chain    string
	Seq      int
	HalfEdge halfedge.HalfEdgeID
	Node     halfedge.NodeID
	From, To int
	// DeltaS is the sparse entropy change of the move, evaluated with the
	// state's entropy options before it was committed.
	DeltaS float64
}

// MoveObserver is notified after every committed move.
type MoveObserver interface {
	ObserveMove(ev MoveEvent)
}

// Params are the construction inputs of a State.
type Params struct {
	// Labels holds the initial block of every half-edge.
	Labels []int
	// NumBlocks is the initial number of block ids; 0 derives it from Labels.
	NumBlocks int `validate:"gte=0"`
	// BarrierLabels holds bclabel per block; nil means no barriers.
	BarrierLabels []int
	// PartitionLabels holds pclabel per node; nil puts every node in one
	// group.
	PartitionLabels []int
	DegCorr         bool
	Index           IndexKind `validate:"gte=0,lte=2"`
	// DenseMaxBlocks bounds IndexAuto's dense choice; 0 means
	// DefaultDenseMaxBlocks.
	DenseMaxBlocks int `validate:"gte=0"`
}

// Option customises a State.
type Option func(*State)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(st *State) { st.base = l }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(st *State) { st.metrics = m }
}

// WithObserver attaches a move observer.
func WithObserver(o MoveObserver) Option {
	return func(st *State) { st.observer = o }
}

// WithEntropyOptions sets the terms used for MoveEvent.DeltaS.
func WithEntropyOptions(opts EntropyOptions) Option {
	return func(st *State) { st.eopts = opts }
}

// State is the overlapping block model state. It is not safe for concurrent
// use; independent copies obtained with Clone may be driven in parallel.
type State struct {
	g   *halfedge.Graph
	idx *halfedge.Index
	bg  *BlockMultigraph

	b        []int // half-edge -> block
	mrp, mrm []int // undirected graphs share one slice
	wr       []int
	bclabel  []int // block -> barrier
	pclabel  []int // node -> statistics group

	degCorr bool

	egroups *EdgeGroups
	pstats  map[int]*partition.Stats

	chain    string
	seq      int
	eopts    EntropyOptions
	base     zerolog.Logger
	logger   zerolog.Logger // base with the chain id
	metrics  *Metrics
	observer MoveObserver

	scratch MoveEntries
}

// New builds the state of graph g under the partition p.Labels.
func New(g *halfedge.Graph, p Params, opts ...Option) (*State, error) {
	if err := validate.Struct(p); err != nil {
		return nil, errors.Wrap(ErrInvalidParams, err.Error())
	}
	if len(p.Labels) != g.NumHalfEdges() {
		return nil, errors.Wrapf(ErrInvalidParams, "got %d labels for %d half-edges",
			len(p.Labels), g.NumHalfEdges())
	}

	numBlocks := p.NumBlocks
	for h, r := range p.Labels {
		if r < 0 || (p.NumBlocks > 0 && r >= p.NumBlocks) {
			return nil, errors.Wrapf(ErrInvalidParams, "half-edge %d has block %d outside [0, %d)",
				h, r, p.NumBlocks)
		}
		if r >= numBlocks {
			numBlocks = r + 1
		}
	}
	if p.BarrierLabels != nil && len(p.BarrierLabels) != numBlocks {
		return nil, errors.Wrapf(ErrInvalidParams, "got %d barrier labels for %d blocks",
			len(p.BarrierLabels), numBlocks)
	}
	if p.PartitionLabels != nil && len(p.PartitionLabels) != g.NumNodes() {
		return nil, errors.Wrapf(ErrInvalidParams, "got %d partition labels for %d nodes",
			len(p.PartitionLabels), g.NumNodes())
	}

	st := &State{
		g:       g,
		b:       append([]int(nil), p.Labels...),
		bclabel: make([]int, numBlocks),
		pclabel: make([]int, g.NumNodes()),
		degCorr: p.DegCorr,
		chain:   uuid.NewString(),
		eopts:   EntropyOptions{Multigraph: true, DegEntropy: true},
		base:    zerolog.Nop(),
	}
	copy(st.bclabel, p.BarrierLabels)
	copy(st.pclabel, p.PartitionLabels)
	for _, opt := range opts {
		opt(st)
	}
	st.logger = st.base.With().Str("chain", st.chain).Logger()

	st.mrp = make([]int, numBlocks)
	if g.Directed() {
		st.mrm = make([]int, numBlocks)
	} else {
		st.mrm = st.mrp
	}

	st.bg = NewBlockMultigraph(g.Directed(), numBlocks, g.NumEdges(), p.Index, p.DenseMaxBlocks)
	for e := halfedge.EdgeID(0); int(e) < g.NumEdges(); e++ {
		r := st.b[halfedge.SourceHalf(e)]
		s := st.b[halfedge.TargetHalf(e)]
		me := st.bg.getOrCreate(r, s)
		st.bg.addMrs(me, 1)
		st.bg.SetBlockEdgeOf(int(e), me)
		st.mrp[r]++
		st.mrm[s]++
	}

	st.idx = halfedge.NewIndex(g, st.b, numBlocks)
	st.wr = make([]int, numBlocks)
	for r := range st.wr {
		st.wr[r] = st.idx.BlockSize(r)
	}

	st.logger.Debug().
		Int("nodes", g.NumNodes()).
		Int("edges", g.NumEdges()).
		Int("blocks", numBlocks).
		Bool("directed", g.Directed()).
		Bool("deg_corr", p.DegCorr).
		Str("index", st.bg.Kind().String()).
		Msg("Block state created")

	return st, nil
}

// Graph returns the half-edge graph.
func (st *State) Graph() *halfedge.Graph { return st.g }

// Index returns the half-edge membership index.
func (st *State) Index() *halfedge.Index { return st.idx }

// BlockGraph returns the block-level multigraph.
func (st *State) BlockGraph() *BlockMultigraph { return st.bg }

// Chain is the identifier of this state copy.
func (st *State) Chain() string { return st.chain }

// DegCorr reports whether the model is degree corrected.
func (st *State) DegCorr() bool { return st.degCorr }

// NumBlocks is the number of block ids in use, empty ones included.
func (st *State) NumBlocks() int { return len(st.wr) }

// Block returns the block of half-edge h.
func (st *State) Block(h halfedge.HalfEdgeID) int { return st.b[h] }

// Labels returns a copy of the half-edge labels.
func (st *State) Labels() []int { return append([]int(nil), st.b...) }

// NodeBlocks returns the blocks node u belongs to, in increasing order.
func (st *State) NodeBlocks(u halfedge.NodeID) []int { return st.idx.NodeBlocks(u) }

func at(xs []int, r int) int {
	if r < len(xs) {
		return xs[r]
	}
	return 0
}

// Mrp is the out-degree sum of block r (the degree sum when undirected).
func (st *State) Mrp(r int) int { return at(st.mrp, r) }

// Mrm is the in-degree sum of block r (the degree sum when undirected).
func (st *State) Mrm(r int) int { return at(st.mrm, r) }

// Wr is the number of distinct nodes in block r. It is not a half-edge
// count: use HalfEdgeCount for the per-block half-edge totals, which sum to
// 2|E| over all blocks.
func (st *State) Wr(r int) int { return at(st.wr, r) }

// BarrierLabel returns bclabel of block r.
func (st *State) BarrierLabel(r int) int { return at(st.bclabel, r) }

// HalfEdgeCount is the number of half-edges labelled r.
func (st *State) HalfEdgeCount(r int) int { return st.idx.HalfEdgeCount(r) }

// NodeWeight is the weight of half-edge h; half-edges are unweighted.
func (st *State) NodeWeight(h halfedge.HalfEdgeID) int { return 1 }

// IsLast reports whether removing h would leave its block without nodes.
func (st *State) IsLast(h halfedge.HalfEdgeID) bool {
	return st.idx.VirtualRemoveSize(h, st.b[h], 0, 0) == 0
}

// VirtualRemoveSize is the size b[h] would have without h.
func (st *State) VirtualRemoveSize(h halfedge.HalfEdgeID) int {
	return st.idx.VirtualRemoveSize(h, st.b[h], 0, 0)
}

// ensureBlocks grows every per-block array to n blocks. New blocks inherit
// the barrier label of from.
func (st *State) ensureBlocks(n, from int) {
	if n <= len(st.wr) {
		return
	}
	label := at(st.bclabel, from)
	for len(st.wr) < n {
		st.wr = append(st.wr, 0)
		st.mrp = append(st.mrp, 0)
		if st.g.Directed() {
			st.mrm = append(st.mrm, 0)
		}
		st.bclabel = append(st.bclabel, label)
	}
	if !st.g.Directed() {
		st.mrm = st.mrp
	}
	st.bg.ensureBlocks(n)
	st.idx.EnsureBlocks(n)
	if st.egroups != nil {
		st.egroups.ensure(n)
	}
}

// removeVertex takes h out of its block.
func (st *State) removeVertex(h halfedge.HalfEdgeID) {
	r := st.b[h]
	e := int(halfedge.EdgeOf(h))
	me := st.bg.BlockEdgeOf(e)

	if w := st.g.OutNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		st.decrement(me, r, s, e)
		st.mrp[r]--
		st.mrm[s]--
	}
	if w := st.g.InNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		st.decrement(me, s, r, e)
		st.mrp[s]--
		st.mrm[r]--
	}

	st.idx.RemoveHalfEdge(h, r, st.b)
	st.wr[r] = st.idx.BlockSize(r)
	if st.egroups != nil {
		st.egroups.remove(h, r)
	}
}

func (st *State) decrement(me, r, s, e int) {
	if me == NullBlockEdge {
		corrupted("edge %d has no block edge", e)
	}
	m := st.bg.addMrs(me, -1)
	switch {
	case m < 0:
		corrupted("negative multiplicity %d between blocks %d and %d", m, r, s)
	case m == 0:
		st.bg.Remove(r, s, me)
	}
	st.bg.SetBlockEdgeOf(e, NullBlockEdge)
}

// addVertex puts h into block r.
func (st *State) addVertex(h halfedge.HalfEdgeID, r int) {
	e := int(halfedge.EdgeOf(h))

	if w := st.g.OutNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		me := st.bg.getOrCreate(r, s)
		st.bg.SetBlockEdgeOf(e, me)
		st.bg.addMrs(me, 1)
		st.mrp[r]++
		st.mrm[s]++
	}
	if w := st.g.InNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		me := st.bg.getOrCreate(s, r)
		st.bg.SetBlockEdgeOf(e, me)
		st.bg.addMrs(me, 1)
		st.mrp[s]++
		st.mrm[r]++
	}

	st.b[h] = r
	st.idx.AddHalfEdge(h, r, st.b)
	st.wr[r] = st.idx.BlockSize(r)
	if st.egroups != nil {
		st.egroups.insert(h, r)
	}
}

// MoveVertex moves half-edge h to block nr. Moves across barrier labels
// fail with ErrInvalidMove and leave the state untouched.
func (st *State) MoveVertex(h halfedge.HalfEdgeID, nr int) error {
	r := st.b[h]
	if r == nr {
		return nil
	}
	if nr < 0 {
		return errors.Wrapf(ErrInvalidMove, "half-edge %d: negative block %d", h, nr)
	}
	if st.BarrierLabel(r) != st.barrierOf(nr, r) {
		if st.metrics != nil {
			st.metrics.BarrierRejections.Inc()
		}
		st.logger.Debug().
			Int("half_edge", int(h)).
			Int("from", r).
			Int("to", nr).
			Msg("Move rejected by barrier")
		return errors.Wrapf(ErrInvalidMove, "half-edge %d: block %d (barrier %d) -> %d (barrier %d)",
			h, r, st.BarrierLabel(r), nr, st.barrierOf(nr, r))
	}

	var dS float64
	if st.observer != nil {
		dS = st.virtualMoveSparse(h, nr, st.eopts.Multigraph, &st.scratch)
	}

	st.ensureBlocks(nr+1, r)

	u := st.g.Node(h)
	if st.pstats != nil {
		if ps, ok := st.pstats[st.pclabel[u]]; ok {
			ps.Move(int(u), st.g.InDegree(h), st.g.OutDegree(h), r, nr)
		}
	}

	st.removeVertex(h)
	st.addVertex(h, nr)

	st.seq++
	if st.metrics != nil {
		st.metrics.MovesCommitted.Inc()
	}
	if st.observer != nil {
		st.observer.ObserveMove(MoveEvent{
			Chain:    st.chain,
			Seq:      st.seq,
			HalfEdge: h,
			Node:     u,
			From:     r,
			To:       nr,
			DeltaS:   dS,
		})
	}
	return nil
}

// barrierOf is the barrier label nr has, or would inherit from r when it
// does not exist yet.
func (st *State) barrierOf(nr, r int) int {
	if nr < len(st.bclabel) {
		return st.bclabel[nr]
	}
	return st.BarrierLabel(r)
}

// SetPartition moves every half-edge to the block given in b.
func (st *State) SetPartition(b []int) error {
	if len(b) != len(st.b) {
		return errors.Wrapf(ErrInvalidParams, "got %d labels for %d half-edges", len(b), len(st.b))
	}
	for h, r := range b {
		if err := st.MoveVertex(halfedge.HalfEdgeID(h), r); err != nil {
			return err
		}
	}
	return nil
}

// LateralHalfEdge draws a half-edge of h's node uniformly.
func (st *State) LateralHalfEdge(h halfedge.HalfEdgeID, rng RNG) halfedge.HalfEdgeID {
	return st.idx.SampleHalfEdge(st.g.Node(h), rng)
}

// RandomNeighbour returns the neighbour of a lateral half-edge of h.
func (st *State) RandomNeighbour(h halfedge.HalfEdgeID, rng RNG) halfedge.HalfEdgeID {
	w := st.LateralHalfEdge(h, rng)
	if u := st.g.OutNeighbour(w); u != halfedge.Null {
		return u
	}
	return st.g.InNeighbour(w)
}

// InitMCMC prepares the state for a sampling run: edge groups are built
// unless c is infinite, and partition statistics follow dl.
func (st *State) InitMCMC(c float64, dl bool) {
	if math.IsInf(c, 1) {
		st.egroups = nil
	} else if st.egroups == nil {
		st.egroups = newEdgeGroups(st.b, st.NumBlocks())
	}
	if dl {
		st.EnablePartitionStats()
	} else {
		st.DisablePartitionStats()
	}
}

// EdgeGroups returns the per-block half-edge samplers, or nil.
func (st *State) EdgeGroups() *EdgeGroups { return st.egroups }

// Clone returns an independent copy sharing only the immutable graph. The
// copy gets a new chain id and no observer.
func (st *State) Clone() *State {
	c := &State{
		g:       st.g,
		idx:     st.idx.Clone(),
		bg:      st.bg.Clone(),
		b:       append([]int(nil), st.b...),
		mrp:     append([]int(nil), st.mrp...),
		wr:      append([]int(nil), st.wr...),
		bclabel: append([]int(nil), st.bclabel...),
		pclabel: append([]int(nil), st.pclabel...),
		degCorr: st.degCorr,
		chain:   uuid.NewString(),
		eopts:   st.eopts,
		base:    st.base,
		metrics: st.metrics,
	}
	if st.g.Directed() {
		c.mrm = append([]int(nil), st.mrm...)
	} else {
		c.mrm = c.mrp
	}
	if st.egroups != nil {
		c.egroups = st.egroups.clone()
	}
	if st.pstats != nil {
		c.pstats = make(map[int]*partition.Stats, len(st.pstats))
		for l, ps := range st.pstats {
			c.pstats[l] = ps.Clone()
		}
	}
	c.logger = c.base.With().Str("chain", c.chain).Logger()
	c.logger.Debug().Str("parent", st.chain).Msg("Block state copied")
	return c
}
