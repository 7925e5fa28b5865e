package blockmodel

import (
	"github.com/pkg/errors"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

// Validate recomputes every aggregate from the labels and compares it with
// the maintained one. It returns an ErrCorrupted-wrapping error describing
// the first mismatch.
func (st *State) Validate() error {
	B := st.NumBlocks()
	directed := st.g.Directed()

	type pair struct{ r, s int }
	mrs := make(map[pair]int)
	mrp := make([]int, B)
	mrm := make([]int, B)
	for e := halfedge.EdgeID(0); int(e) < st.g.NumEdges(); e++ {
		r := st.b[halfedge.SourceHalf(e)]
		s := st.b[halfedge.TargetHalf(e)]
		if r >= B || s >= B {
			return errors.Wrapf(ErrCorrupted, "edge %d labelled (%d, %d) beyond %d blocks", e, r, s, B)
		}
		mrp[r]++
		if directed {
			mrm[s]++
		} else {
			mrp[s]++
		}

		me := st.bg.BlockEdgeOf(int(e))
		if me == NullBlockEdge {
			return errors.Wrapf(ErrCorrupted, "edge %d has no block edge", e)
		}
		if br, bs := st.bg.Pair(me); st.bg.Get(r, s) != me || (br != r || bs != s) && (directed || br != s || bs != r) {
			return errors.Wrapf(ErrCorrupted, "edge %d mapped to block edge (%d, %d), labels say (%d, %d)",
				e, br, bs, r, s)
		}

		if !directed && s < r {
			r, s = s, r
		}
		mrs[pair{r, s}]++
	}
	if !directed {
		mrm = mrp
	}

	records := 0
	var err error
	st.bg.ForEach(func(r, s, m int) {
		records++
		if err == nil && mrs[pair{r, s}] != m {
			err = errors.Wrapf(ErrCorrupted, "mrs(%d, %d) = %d, expected %d", r, s, m, mrs[pair{r, s}])
		}
	})
	if err != nil {
		return err
	}
	if records != len(mrs) || st.bg.NumBlockEdges() != len(mrs) {
		return errors.Wrapf(ErrCorrupted, "%d block edges recorded, %d expected", st.bg.NumBlockEdges(), len(mrs))
	}

	halfEdges := 0
	for r := 0; r < B; r++ {
		if st.mrp[r] != mrp[r] || st.mrm[r] != mrm[r] {
			return errors.Wrapf(ErrCorrupted, "block %d degree sums (%d, %d), expected (%d, %d)",
				r, st.mrp[r], st.mrm[r], mrp[r], mrm[r])
		}
		if st.wr[r] != st.idx.BlockSize(r) {
			return errors.Wrapf(ErrCorrupted, "block %d size %d, index says %d", r, st.wr[r], st.idx.BlockSize(r))
		}
		halfEdges += st.idx.HalfEdgeCount(r)
		if eg := st.egroups; eg != nil {
			if n := st.idx.HalfEdgeCount(r); eg.Size(r) != n || eg.Weight(r) != float64(n) {
				return errors.Wrapf(ErrCorrupted, "block %d edge group holds %d half-edges of weight %g, expected %d",
					r, eg.Size(r), eg.Weight(r), n)
			}
		}
	}
	if halfEdges != st.g.NumHalfEdges() {
		return errors.Wrapf(ErrCorrupted, "%d half-edges in blocks, graph has %d", halfEdges, st.g.NumHalfEdges())
	}

	// sum over s of mrs(r, s) must equal the degree sums
	out := make([]int, B)
	in := make([]int, B)
	for p, m := range mrs {
		out[p.r] += m
		if directed {
			in[p.s] += m
		} else {
			out[p.s] += m
		}
	}
	for r := 0; r < B; r++ {
		if out[r] != mrp[r] || (directed && in[r] != mrm[r]) {
			return errors.Wrapf(ErrCorrupted, "block %d edge counts (%d, %d) do not match degree sums (%d, %d)",
				r, out[r], in[r], mrp[r], mrm[r])
		}
	}
	return nil
}
