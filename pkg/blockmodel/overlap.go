package blockmodel

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

// NodeOverlap is the overlapping membership of one node: its blocks in
// increasing order, and per block the number of in, out and all half-edges
// the node keeps there.
type NodeOverlap struct {
	Blocks []int `json:"blocks" yaml:"blocks"`
	In     []int `json:"in" yaml:"in"`
	Out    []int `json:"out" yaml:"out"`
	Total  []int `json:"total" yaml:"total"`
}

// BEOverlap returns, per original edge, the blocks of its source and target
// half-edges.
func (st *State) BEOverlap() [][2]int {
	be := make([][2]int, st.g.NumEdges())
	for e := range be {
		be[e] = [2]int{
			st.b[halfedge.SourceHalf(halfedge.EdgeID(e))],
			st.b[halfedge.TargetHalf(halfedge.EdgeID(e))],
		}
	}
	return be
}

type overlapCount struct {
	in, out, total int
}

// BVOverlap returns the overlapping membership of every node.
func (st *State) BVOverlap() []NodeOverlap {
	bv := make([]NodeOverlap, st.g.NumNodes())
	for u := range bv {
		counts := redblacktree.NewWithIntComparator()
		for _, h := range st.g.HalfEdges(halfedge.NodeID(u)) {
			r := st.b[h]
			c := &overlapCount{}
			if v, found := counts.Get(r); found {
				c = v.(*overlapCount)
			} else {
				counts.Put(r, c)
			}
			c.in += st.g.InDegree(h)
			c.out += st.g.OutDegree(h)
			c.total++
		}

		no := NodeOverlap{}
		it := counts.Iterator()
		for it.Next() {
			c := it.Value().(*overlapCount)
			no.Blocks = append(no.Blocks, it.Key().(int))
			no.In = append(no.In, c.in)
			no.Out = append(no.Out, c.out)
			no.Total = append(no.Total, c.total)
		}
		bv[u] = no
	}
	return bv
}

func compareBlockSets(a, b interface{}) int {
	x, y := a.([]int), b.([]int)
	for i := 0; i < len(x) && i < len(y); i++ {
		switch {
		case x[i] < y[i]:
			return -1
		case x[i] > y[i]:
			return 1
		}
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	}
	return 0
}

// OverlapSplit labels every node by its block set: nodes with identical
// sets share a label, and labels follow the lexicographic order of the
// sets. Each bv[u] must be sorted.
func OverlapSplit(bv [][]int) []int {
	sets := redblacktree.Tree{Comparator: compareBlockSets}
	for _, blocks := range bv {
		if _, found := sets.Get(blocks); !found {
			sets.Put(append([]int{}, blocks...), 0)
		}
	}

	id := 0
	it := sets.Iterator()
	for it.Next() {
		sets.Put(it.Key(), id)
		id++
	}

	labels := make([]int, len(bv))
	for u, blocks := range bv {
		v, _ := sets.Get(blocks)
		labels[u] = v.(int)
	}
	return labels
}

// OverlapSplit labels the nodes of the state by their current block sets.
func (st *State) OverlapSplit() []int {
	bv := make([][]int, st.g.NumNodes())
	for u := range bv {
		bv[u] = st.idx.NodeBlocks(halfedge.NodeID(u))
	}
	return OverlapSplit(bv)
}
