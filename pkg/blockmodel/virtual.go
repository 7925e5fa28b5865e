package blockmodel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

// MoveOptions selects the terms priced by VirtualMove.
type MoveOptions struct {
	// Dense requests the dense formulation, which is unsupported.
	Dense bool
	// Multigraph adds the parallel-edge correction.
	Multigraph bool
	// PartitionDL adds the partition description length change.
	PartitionDL bool
	// DegreeDL adds the degree description length change; ignored without
	// degree correction.
	DegreeDL bool
	// EdgesDL adds the edge-count description length change.
	EdgesDL bool
	DegDL   DegDLOptions
}

func (o MoveOptions) needsStats() bool {
	return o.PartitionDL || o.DegreeDL || o.EdgesDL
}

// VirtualMoveSparse is the sparse entropy change of moving h to nr. It
// does not modify the state.
func (st *State) VirtualMoveSparse(h halfedge.HalfEdgeID, nr int, multigraph bool) float64 {
	var m MoveEntries
	st.countVirtual(h, nr)
	return st.virtualMoveSparse(h, nr, multigraph, &m)
}

// countVirtual counts a caller-requested evaluation of moving h to nr.
func (st *State) countVirtual(h halfedge.HalfEdgeID, nr int) {
	if st.metrics != nil && st.b[h] != nr {
		st.metrics.VirtualMoves.Inc()
	}
}

func (st *State) virtualMoveSparse(h halfedge.HalfEdgeID, nr int, multigraph bool, m *MoveEntries) float64 {
	r := st.b[h]
	if r == nr {
		return 0
	}

	directed := st.g.Directed()
	kout := st.g.OutDegree(h)
	kin := st.g.InDegree(h)

	st.moveEntries(h, r, nr, m)
	dS := st.entriesDS(m)

	wr, wnr := st.Wr(r), st.Wr(nr)
	dwr := wr - st.idx.VirtualRemoveSize(h, r, kin, kout)
	dwnr := st.idx.VirtualAddSize(h, nr) - wnr

	if st.degCorr {
		dS += st.idx.VirtualMoveDS(h, r, nr, kin, kout)
	}
	if multigraph {
		dS += st.idx.VirtualMoveParallelDS(h, r, nr, st.b)
	}

	if !directed {
		kin = kout
	}

	mrp, mrm := st.Mrp(r), st.Mrm(r)
	nmrp, nmrm := st.Mrp(nr), st.Mrm(nr)

	dS += vterm(mrp-kout, mrm-kin, wr-dwr, st.degCorr, directed)
	dS += vterm(nmrp+kout, nmrm+kin, wnr+dwnr, st.degCorr, directed)
	dS -= vterm(mrp, mrm, wr, st.degCorr, directed)
	dS -= vterm(nmrp, nmrm, wnr, st.degCorr, directed)
	return dS
}

// VirtualMoveDense always fails: the overlapping model has no dense
// formulation.
func (st *State) VirtualMoveDense(h halfedge.HalfEdgeID, nr int, multigraph bool) (float64, error) {
	return 0, errors.Wrap(ErrUnsupported, "virtual move")
}

// VirtualMove is the objective change of moving h to nr under opts. Moves
// across barrier labels cost +Inf. Description length terms enable the
// partition statistics on first use.
func (st *State) VirtualMove(h halfedge.HalfEdgeID, nr int, opts MoveOptions) (float64, error) {
	return st.VirtualMoveWith(h, nr, opts, &st.scratch)
}

// VirtualMoveWith is VirtualMove with a caller-owned entry buffer, which is
// left holding the entries of the move for use with MoveProbWith.
func (st *State) VirtualMoveWith(h halfedge.HalfEdgeID, nr int, opts MoveOptions, m *MoveEntries) (float64, error) {
	r := st.b[h]
	if st.BarrierLabel(r) != st.barrierOf(nr, r) {
		return math.Inf(1), nil
	}
	if opts.Dense {
		return st.VirtualMoveDense(h, nr, opts.Multigraph)
	}

	st.countVirtual(h, nr)
	dS := st.virtualMoveSparse(h, nr, opts.Multigraph, m)
	if r == nr || !opts.needsStats() {
		return dS, nil
	}

	ps := st.statsOf(h)
	u := int(st.g.Node(h))
	kin, kout := st.g.InDegree(h), st.g.OutDegree(h)
	if opts.PartitionDL {
		dS += ps.DeltaPartitionDL(u, kin, kout, r, nr)
	}
	if st.degCorr && opts.DegreeDL {
		dS += ps.DeltaDegDL(u, kin, kout, r, nr, opts.DegDL)
	}
	if opts.EdgesDL {
		dS += ps.DeltaEdgesDL(u, kin, kout, r, nr)
	}
	return dS, nil
}

// DeltaDL is the partition description length change of moving h to nr.
func (st *State) DeltaDL(h halfedge.HalfEdgeID, nr int) float64 {
	r := st.b[h]
	if r == nr {
		return 0
	}
	u := int(st.g.Node(h))
	return st.statsOf(h).DeltaPartitionDL(u, st.g.InDegree(h), st.g.OutDegree(h), r, nr)
}
