package blockmodel

import (
	"strings"

	"github.com/pkg/errors"
)

// IndexKind selects how block pairs are mapped to block-edge records.
type IndexKind int

const (
	// IndexAuto picks IndexDense while the block count is at most the
	// configured dense limit, IndexHash otherwise.
	IndexAuto IndexKind = iota
	// IndexDense keeps a B x B matrix of record ids.
	IndexDense
	// IndexHash keeps one map of record ids per block.
	IndexHash
)

// DefaultDenseMaxBlocks is the largest block count IndexAuto stores densely.
const DefaultDenseMaxBlocks = 1024

func (k IndexKind) String() string {
	switch k {
	case IndexDense:
		return "dense"
	case IndexHash:
		return "hash"
	default:
		return "auto"
	}
}

// ParseIndexKind parses "auto", "dense" or "hash".
func ParseIndexKind(s string) (IndexKind, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return IndexAuto, nil
	case "dense":
		return IndexDense, nil
	case "hash":
		return IndexHash, nil
	}
	return IndexAuto, errors.Errorf("unknown index kind %q", s)
}

// NullBlockEdge marks a missing block-edge record.
const NullBlockEdge = -1

type edgeIndex interface {
	get(r, s int) int
	put(r, s, id int)
	remove(r, s int)
	ensure(n int)
	clone() edgeIndex
}

type denseIndex struct {
	n     int
	limit int   // growth cap, 0 for none
	ids   []int // row-major n x n
}

func newDenseIndex(n, limit int) *denseIndex {
	d := &denseIndex{limit: limit}
	d.ensure(n)
	return d
}

func (d *denseIndex) get(r, s int) int {
	if r >= d.n || s >= d.n {
		return NullBlockEdge
	}
	return d.ids[r*d.n+s]
}

func (d *denseIndex) put(r, s, id int) {
	if r >= d.n || s >= d.n {
		d.ensure(max(r, s) + 1)
	}
	d.ids[r*d.n+s] = id
}

func (d *denseIndex) remove(r, s int) {
	if r < d.n && s < d.n {
		d.ids[r*d.n+s] = NullBlockEdge
	}
}

// ensure grows the matrix to at least n x n, doubling so that opening
// blocks one at a time stays amortized constant.
func (d *denseIndex) ensure(n int) {
	if n <= d.n {
		return
	}
	if d.n > 0 {
		grown := 2 * d.n
		if d.limit > 0 {
			grown = min(grown, d.limit)
		}
		n = max(n, grown)
	}
	ids := make([]int, n*n)
	for i := range ids {
		ids[i] = NullBlockEdge
	}
	for r := 0; r < d.n; r++ {
		copy(ids[r*n:r*n+d.n], d.ids[r*d.n:(r+1)*d.n])
	}
	d.n, d.ids = n, ids
}

func (d *denseIndex) clone() edgeIndex {
	return &denseIndex{n: d.n, limit: d.limit, ids: append([]int(nil), d.ids...)}
}

// toHash copies the matrix into a hash index.
func (d *denseIndex) toHash() *hashIndex {
	h := newHashIndex(d.n)
	for r := 0; r < d.n; r++ {
		for s, id := range d.ids[r*d.n : (r+1)*d.n] {
			if id != NullBlockEdge {
				h.rows[r][s] = id
			}
		}
	}
	return h
}

type hashIndex struct {
	rows []map[int]int
}

func newHashIndex(n int) *hashIndex {
	h := &hashIndex{}
	h.ensure(n)
	return h
}

func (h *hashIndex) get(r, s int) int {
	if r >= len(h.rows) {
		return NullBlockEdge
	}
	if id, ok := h.rows[r][s]; ok {
		return id
	}
	return NullBlockEdge
}

func (h *hashIndex) put(r, s, id int) {
	h.ensure(r + 1)
	h.rows[r][s] = id
}

func (h *hashIndex) remove(r, s int) {
	if r < len(h.rows) {
		delete(h.rows[r], s)
	}
}

func (h *hashIndex) ensure(n int) {
	for len(h.rows) < n {
		h.rows = append(h.rows, make(map[int]int))
	}
}

func (h *hashIndex) clone() edgeIndex {
	c := &hashIndex{rows: make([]map[int]int, len(h.rows))}
	for r, row := range h.rows {
		cr := make(map[int]int, len(row))
		for s, id := range row {
			cr[s] = id
		}
		c.rows[r] = cr
	}
	return c
}

// BlockMultigraph is the block-level contraction of the graph: one record
// per block pair joined by at least one edge, holding the edge count mrs.
// Undirected pairs are unordered.
type BlockMultigraph struct {
	directed bool
	index    edgeIndex
	// auto indexes switch from dense to hash past denseMax blocks
	auto     bool
	denseMax int

	pairs [][2]int // record -> (r, s)
	mrs   []int
	free  []int
	count int

	bedge []int // original edge -> record
}

// NewBlockMultigraph returns an empty block graph over numBlocks blocks for
// a graph with numEdges edges.
func NewBlockMultigraph(directed bool, numBlocks, numEdges int, kind IndexKind, denseMax int) *BlockMultigraph {
	if denseMax <= 0 {
		denseMax = DefaultDenseMaxBlocks
	}
	bg := &BlockMultigraph{
		directed: directed,
		auto:     kind == IndexAuto,
		denseMax: denseMax,
		bedge:    make([]int, numEdges),
	}
	if kind == IndexAuto {
		kind = IndexHash
		if numBlocks <= denseMax {
			kind = IndexDense
		}
	}

	switch {
	case kind == IndexDense && bg.auto:
		bg.index = newDenseIndex(numBlocks, denseMax)
	case kind == IndexDense:
		bg.index = newDenseIndex(numBlocks, 0)
	default:
		bg.index = newHashIndex(numBlocks)
	}
	for e := range bg.bedge {
		bg.bedge[e] = NullBlockEdge
	}
	return bg
}

// Kind reports the backing index in use.
func (bg *BlockMultigraph) Kind() IndexKind {
	if _, ok := bg.index.(*denseIndex); ok {
		return IndexDense
	}
	return IndexHash
}

func (bg *BlockMultigraph) key(r, s int) (int, int) {
	if !bg.directed && s < r {
		return s, r
	}
	return r, s
}

// Get returns the record joining r and s, or NullBlockEdge.
func (bg *BlockMultigraph) Get(r, s int) int {
	r, s = bg.key(r, s)
	return bg.index.get(r, s)
}

// Put registers record id as the one joining r and s.
func (bg *BlockMultigraph) Put(r, s, id int) {
	r, s = bg.key(r, s)
	bg.ensureBlocks(max(r, s) + 1)
	bg.index.put(r, s, id)
}

// DenseMaxBlocks is the block count past which an automatically chosen
// dense index is replaced by a hash index.
func (bg *BlockMultigraph) DenseMaxBlocks() int { return bg.denseMax }

// Remove unregisters record id from the pair (r, s) and recycles it.
func (bg *BlockMultigraph) Remove(r, s, id int) {
	r, s = bg.key(r, s)
	bg.index.remove(r, s)
	bg.mrs[id] = 0
	bg.free = append(bg.free, id)
	bg.count--
}

// create allocates a record for (r, s) with zero multiplicity.
func (bg *BlockMultigraph) create(r, s int) int {
	r, s = bg.key(r, s)
	var id int
	if n := len(bg.free); n > 0 {
		id = bg.free[n-1]
		bg.free = bg.free[:n-1]
		bg.pairs[id] = [2]int{r, s}
	} else {
		id = len(bg.mrs)
		bg.pairs = append(bg.pairs, [2]int{r, s})
		bg.mrs = append(bg.mrs, 0)
	}
	bg.count++
	bg.Put(r, s, id)
	return id
}

// getOrCreate returns the record joining r and s, creating it if needed.
func (bg *BlockMultigraph) getOrCreate(r, s int) int {
	if id := bg.Get(r, s); id != NullBlockEdge {
		return id
	}
	return bg.create(r, s)
}

// ensureBlocks grows the index to n blocks. An automatically chosen dense
// index becomes a hash index once n exceeds the dense limit.
func (bg *BlockMultigraph) ensureBlocks(n int) {
	if d, ok := bg.index.(*denseIndex); ok && bg.auto && n > bg.denseMax {
		bg.index = d.toHash()
	}
	bg.index.ensure(n)
}

// BlockEdgeOf returns the record the original edge e contributes to.
func (bg *BlockMultigraph) BlockEdgeOf(e int) int { return bg.bedge[e] }

// SetBlockEdgeOf records that edge e contributes to record id.
func (bg *BlockMultigraph) SetBlockEdgeOf(e, id int) { bg.bedge[e] = id }

// Mrs returns the edge count of record id.
func (bg *BlockMultigraph) Mrs(id int) int { return bg.mrs[id] }

// Pair returns the blocks joined by record id.
func (bg *BlockMultigraph) Pair(id int) (int, int) {
	p := bg.pairs[id]
	return p[0], p[1]
}

// addMrs changes the edge count of record id by d and returns the new value.
func (bg *BlockMultigraph) addMrs(id, d int) int {
	bg.mrs[id] += d
	return bg.mrs[id]
}

// MrsBetween returns the number of edges between r and s.
func (bg *BlockMultigraph) MrsBetween(r, s int) int {
	id := bg.Get(r, s)
	if id == NullBlockEdge {
		return 0
	}
	return bg.mrs[id]
}

// NumBlockEdges is the number of live records.
func (bg *BlockMultigraph) NumBlockEdges() int { return bg.count }

// ForEach calls fn for every live record in id order.
func (bg *BlockMultigraph) ForEach(fn func(r, s, mrs int)) {
	for id, m := range bg.mrs {
		if m <= 0 {
			continue
		}
		p := bg.pairs[id]
		fn(p[0], p[1], m)
	}
}

// Clone returns a deep copy.
func (bg *BlockMultigraph) Clone() *BlockMultigraph {
	return &BlockMultigraph{
		directed: bg.directed,
		index:    bg.index.clone(),
		auto:     bg.auto,
		denseMax: bg.denseMax,
		pairs:    append([][2]int(nil), bg.pairs...),
		mrs:      append([]int(nil), bg.mrs...),
		free:     append([]int(nil), bg.free...),
		count:    bg.count,
		bedge:    append([]int(nil), bg.bedge...),
	}
}
