package blockmodel

import (
	"math"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/sampler"
)

// RNG is the uniform random source used for proposals.
type RNG = sampler.RNG

// SampleBlock proposes a new block for h. With probability depending on c
// the proposal is uniform over candidates (all blocks when nil); otherwise
// it is the block of a neighbour of a block adjacent to h's node, reached
// through a real edge. c == 0 gives purely neighbour-driven proposals and
// c == +Inf purely uniform ones.
//
// The mixing weight always counts every allocated block, so restricting the
// candidates narrows only the uniform pick.
func (st *State) SampleBlock(h halfedge.HalfEdgeID, c float64, candidates []int, rng RNG) int {
	B := st.NumBlocks()
	pick := func() int {
		if candidates == nil {
			return rng.Intn(B)
		}
		return candidates[rng.Intn(len(candidates))]
	}

	s := pick()
	if math.IsInf(c, 1) {
		return s
	}

	if st.egroups == nil {
		st.egroups = newEdgeGroups(st.b, st.NumBlocks())
	}

	w := st.LateralHalfEdge(h, rng)
	u := st.g.OutNeighbour(w)
	if u == halfedge.Null {
		u = st.g.InNeighbour(w)
	}
	t := st.b[u]

	var pRand float64
	if c > 0 {
		cB := c * float64(B)
		if st.g.Directed() {
			pRand = cB / (float64(st.mrp[t]+st.mrm[t]) + cB)
		} else {
			pRand = cB / (float64(st.mrp[t]) + cB)
		}
	}

	if c == 0 || rng.Float64() >= pRand {
		if he, ok := st.egroups.Sample(t, rng); ok {
			s = st.b[halfedge.Partner(he)]
		}
	}
	return s
}

// MoveProb is the probability that SampleBlock, called with all blocks as
// candidates, proposes moving h from r to s. With reverse set it is the
// probability of proposing the move back from r to s once h has moved to
// r; the counts after that move are simulated, not applied.
func (st *State) MoveProb(h halfedge.HalfEdgeID, r, s int, c float64, reverse bool) float64 {
	var m MoveEntries
	if reverse {
		st.moveEntries(h, st.b[h], r, &m)
	}
	return st.moveProb(h, r, s, c, reverse, &m)
}

// MoveProbWith is MoveProb reusing the entries left in m by VirtualMoveWith
// for the move of h to r.
func (st *State) MoveProbWith(h halfedge.HalfEdgeID, r, s int, c float64, reverse bool, m *MoveEntries) float64 {
	return st.moveProb(h, r, s, c, reverse, m)
}

func (st *State) moveProb(h halfedge.HalfEdgeID, r, s int, c float64, reverse bool, m *MoveEntries) float64 {
	B := float64(st.NumBlocks())
	directed := st.g.Directed()
	kout := st.g.OutDegree(h)
	kin := st.g.InDegree(h)

	var p, w float64
	for _, x := range st.g.HalfEdges(st.g.Node(h)) {
		u := st.g.OutNeighbour(x)
		if u == halfedge.Null {
			u = st.g.InNeighbour(x)
		}

		t := st.b[u]
		if u == h {
			t = r
		}

		mts := st.bg.MrsBetween(t, s)
		mtp := st.Mrp(t)
		var mst, mtm int
		if directed {
			mst = st.bg.MrsBetween(s, t)
			mtm = st.Mrm(t)
		}

		if reverse {
			mts += m.Delta(t, s)
			if directed {
				mst += m.Delta(s, t)
			}
			if t == s {
				mtp -= kout
				mtm -= kin
			}
			if t == r {
				mtp += kout
				mtm += kin
			}
		}

		if directed {
			p += (float64(mts+mst) + c) / (float64(mtp+mtm) + c*B)
		} else {
			if t == s {
				mts *= 2
			}
			p += (float64(mts) + c) / (float64(mtp) + c*B)
		}
		w++
	}

	if w == 0 {
		return 1 / B
	}
	return p / w
}
