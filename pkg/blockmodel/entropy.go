package blockmodel

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/mathutil"
	"github.com/gilchrisn/overlap-blockmodel/pkg/partition"
)

// EntropyOptions selects the terms summed by Entropy.
type EntropyOptions struct {
	// Dense requests the dense formulation, which is unsupported.
	Dense bool
	// Multigraph adds the parallel-edge correction.
	Multigraph bool
	// DegEntropy adds the degree-correction term; ignored without degree
	// correction.
	DegEntropy bool
	// PartitionDL, DegreeDL and EdgesDL add the description length terms;
	// DegreeDL is ignored without degree correction.
	PartitionDL bool
	DegreeDL    bool
	EdgesDL     bool
	DegDL       DegDLOptions
}

// Entropy is the description length of the current state under opts.
func (st *State) Entropy(opts EntropyOptions) (float64, error) {
	if opts.Dense {
		return 0, errors.Wrap(ErrUnsupported, "entropy")
	}
	S := st.SparseEntropy(opts.Multigraph, opts.DegEntropy)
	if opts.PartitionDL {
		S += st.PartitionDL()
	}
	if st.degCorr && opts.DegreeDL {
		S += st.DegDL(opts.DegDL)
	}
	if opts.EdgesDL {
		S += st.EdgesDL()
	}
	if st.metrics != nil {
		st.metrics.Entropy.Set(S)
	}
	return S, nil
}

// SparseEntropy is the sparse model entropy: edge-count and block terms,
// plus the degree-correction term when degEntropy is set and the model is
// degree corrected, plus the parallel-edge correction when multigraph is
// set.
func (st *State) SparseEntropy(multigraph, degEntropy bool) float64 {
	directed := st.g.Directed()

	var S float64
	st.bg.ForEach(func(r, s, mrs int) {
		S += eterm(r, s, mrs, directed)
	})
	for r := range st.wr {
		S += vterm(st.mrp[r], st.mrm[r], st.wr[r], st.degCorr, directed)
	}

	if st.degCorr && degEntropy {
		for u := halfedge.NodeID(0); int(u) < st.g.NumNodes(); u++ {
			for _, m := range st.idx.NodeMembership(u) {
				S -= mathutil.LFactorial(m.In) + mathutil.LFactorial(m.Out)
			}
		}
	}

	if multigraph {
		S += st.ParallelEntropy()
	}
	return S
}

// ParallelEntropy is the parallel-edge correction: the sum of ln c! over the
// block-pair histograms of every bundle of parallel edges.
func (st *State) ParallelEntropy() float64 {
	var S float64
	for _, hist := range st.idx.ParallelBundles() {
		for _, c := range hist {
			S += mathutil.LFactorial(c)
		}
	}
	return S
}

// EnablePartitionStats builds one partition.Stats per partition label from
// the current membership. It is a no-op when already enabled.
func (st *State) EnablePartitionStats() {
	if st.pstats != nil {
		return
	}
	st.pstats = make(map[int]*partition.Stats)
	for u := halfedge.NodeID(0); int(u) < st.g.NumNodes(); u++ {
		st.groupStats(st.pclabel[u]).AddNode(int(u), st.idx.NodeMembership(u))
	}
	st.logger.Debug().Int("groups", len(st.pstats)).Msg("Partition statistics enabled")
}

// DisablePartitionStats drops the partition statistics.
func (st *State) DisablePartitionStats() {
	if st.pstats == nil {
		return
	}
	st.pstats = nil
	st.logger.Debug().Msg("Partition statistics disabled")
}

// PartitionStatsEnabled reports whether partition statistics are kept.
func (st *State) PartitionStatsEnabled() bool { return st.pstats != nil }

func (st *State) groupStats(label int) *partition.Stats {
	ps, ok := st.pstats[label]
	if !ok {
		ps = partition.NewStats(st.g.Directed())
		st.pstats[label] = ps
	}
	return ps
}

// statsOf returns the statistics of h's node group, enabling them if
// needed.
func (st *State) statsOf(h halfedge.HalfEdgeID) *partition.Stats {
	st.EnablePartitionStats()
	return st.groupStats(st.pclabel[st.g.Node(h)])
}

// sortedStats returns the group statistics in label order.
func (st *State) sortedStats() []*partition.Stats {
	st.EnablePartitionStats()
	labels := make([]int, 0, len(st.pstats))
	for l := range st.pstats {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	out := make([]*partition.Stats, len(labels))
	for i, l := range labels {
		out[i] = st.pstats[l]
	}
	return out
}

// PartitionDL is the partition description length summed over groups.
func (st *State) PartitionDL() float64 {
	var S float64
	for _, ps := range st.sortedStats() {
		S += ps.PartitionDL()
	}
	return S
}

// DegDL is the degree description length summed over groups.
func (st *State) DegDL(opts DegDLOptions) float64 {
	var S float64
	for _, ps := range st.sortedStats() {
		S += ps.DegDL(opts)
	}
	return S
}

// EdgesDL is the edge-count description length summed over groups.
func (st *State) EdgesDL() float64 {
	var S float64
	for _, ps := range st.sortedStats() {
		S += ps.EdgesDL()
	}
	return S
}
