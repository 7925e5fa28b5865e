package blockmodel

import "github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"

type entry struct {
	r, s, d int
}

// MoveEntries lists the block pairs whose edge counts a single move would
// change, with the signed change of each. A zero value is ready for use and
// may be reused across calls.
type MoveEntries struct {
	directed bool
	items    []entry
}

func (m *MoveEntries) reset(directed bool) {
	m.directed = directed
	m.items = m.items[:0]
}

func (m *MoveEntries) key(r, s int) (int, int) {
	if !m.directed && s < r {
		return s, r
	}
	return r, s
}

func (m *MoveEntries) add(r, s, d int) {
	r, s = m.key(r, s)
	for i := range m.items {
		if m.items[i].r == r && m.items[i].s == s {
			m.items[i].d += d
			return
		}
	}
	m.items = append(m.items, entry{r, s, d})
}

// Delta returns the change recorded for the pair (r, s).
func (m *MoveEntries) Delta(r, s int) int {
	r, s = m.key(r, s)
	for _, e := range m.items {
		if e.r == r && e.s == s {
			return e.d
		}
	}
	return 0
}

// Len is the number of recorded pairs.
func (m *MoveEntries) Len() int { return len(m.items) }

// moveEntries fills m with the pair changes of moving h from r to nr.
func (st *State) moveEntries(h halfedge.HalfEdgeID, r, nr int, m *MoveEntries) {
	m.reset(st.g.Directed())
	if w := st.g.OutNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		m.add(r, s, -1)
		m.add(nr, s, +1)
	}
	if w := st.g.InNeighbour(h); w != halfedge.Null {
		s := st.b[w]
		m.add(s, r, -1)
		m.add(s, nr, +1)
	}
}

// entriesDS is the eterm change over the recorded pairs.
func (st *State) entriesDS(m *MoveEntries) float64 {
	var dS float64
	directed := st.g.Directed()
	for _, e := range m.items {
		if e.d == 0 {
			continue
		}
		mrs := st.bg.MrsBetween(e.r, e.s)
		dS += eterm(e.r, e.s, mrs+e.d, directed) - eterm(e.r, e.s, mrs, directed)
	}
	return dS
}
