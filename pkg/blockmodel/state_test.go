package blockmodel

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

const tolerance = 1e-8

// trianglePendant is 0-1, 1-2, 0-2, 2-3 with node 3's half-edge in block 1.
func trianglePendant(t *testing.T) (*halfedge.Graph, []int) {
	t.Helper()
	g := halfedge.NewGraph(4, false)
	for _, e := range [][2]halfedge.NodeID{{0, 1}, {1, 2}, {0, 2}, {2, 3}} {
		_, err := g.AddEdge(e[0], e[1])
		require.NoError(t, err)
	}
	return g, []int{0, 0, 0, 0, 0, 0, 0, 1}
}

// randomGraph draws m edges over n nodes; roughly one edge in five repeats
// the previous one and self-loops are allowed.
func randomGraph(t *testing.T, rng *rand.Rand, n, m int, directed bool) *halfedge.Graph {
	t.Helper()
	g := halfedge.NewGraph(n, directed)
	var u, v halfedge.NodeID
	for i := 0; i < m; i++ {
		if i == 0 || rng.Intn(5) != 0 {
			u = halfedge.NodeID(rng.Intn(n))
			v = halfedge.NodeID(rng.Intn(n))
		}
		_, err := g.AddEdge(u, v)
		require.NoError(t, err)
	}
	return g
}

func randomLabels(rng *rand.Rand, n, numBlocks int) []int {
	b := make([]int, n)
	for i := range b {
		b[i] = rng.Intn(numBlocks)
	}
	return b
}

func newState(t *testing.T, g *halfedge.Graph, p Params, opts ...Option) *State {
	t.Helper()
	st, err := New(g, p, opts...)
	require.NoError(t, err)
	require.NoError(t, st.Validate())
	return st
}

func sparseOnly() EntropyOptions {
	return EntropyOptions{Multigraph: true, DegEntropy: true}
}

func entropy(t *testing.T, st *State, opts EntropyOptions) float64 {
	t.Helper()
	S, err := st.Entropy(opts)
	require.NoError(t, err)
	return S
}

func TestTrianglePendantMove(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})

	assert.Equal(t, 2, st.NumBlocks())
	assert.Equal(t, 3, st.Wr(0))
	assert.Equal(t, 1, st.Wr(1))
	assert.Equal(t, 7, st.Mrp(0))
	assert.Equal(t, 1, st.Mrp(1))
	assert.Equal(t, st.Mrp(0), st.Mrm(0))
	assert.Equal(t, 3, st.BlockGraph().MrsBetween(0, 0))
	assert.Equal(t, 1, st.BlockGraph().MrsBetween(1, 0))

	before := 7*math.Log(3) - 3*math.Log(6)
	assert.InDelta(t, before, entropy(t, st, sparseOnly()), tolerance)

	assert.True(t, st.IsLast(7))
	assert.False(t, st.IsLast(0))
	assert.Equal(t, 3, st.VirtualRemoveSize(0))

	dS := st.VirtualMoveSparse(7, 0, true)
	assert.InDelta(t, 7*math.Log(2)-4*math.Log(3), dS, tolerance)

	require.NoError(t, st.MoveVertex(7, 0))
	require.NoError(t, st.Validate())

	assert.InDelta(t, 4*math.Log(2), entropy(t, st, sparseOnly()), tolerance)
	assert.Equal(t, 2, st.NumBlocks())
	assert.Equal(t, 4, st.Wr(0))
	assert.Equal(t, 0, st.Wr(1))
	assert.Equal(t, 0, st.HalfEdgeCount(1))
	assert.Equal(t, 8, st.HalfEdgeCount(0))
	assert.Equal(t, 1, st.BlockGraph().NumBlockEdges())
}

func TestMoveToNewBlock(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b, DegCorr: true})

	before := entropy(t, st, sparseOnly())
	dS := st.VirtualMoveSparse(3, 4, true)

	require.NoError(t, st.MoveVertex(3, 4))
	require.NoError(t, st.Validate())
	assert.Equal(t, 5, st.NumBlocks())
	assert.Equal(t, 1, st.Wr(4))
	assert.Equal(t, []int{0, 4}, st.NodeBlocks(2))
	assert.InDelta(t, entropy(t, st, sparseOnly())-before, dS, tolerance)
}

func TestNewRejectsBadParams(t *testing.T) {
	g, b := trianglePendant(t)

	_, err := New(g, Params{Labels: b[:5]})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(g, Params{Labels: []int{0, 0, 0, 0, 0, 0, 0, -1}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(g, Params{Labels: b, NumBlocks: 1})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(g, Params{Labels: b, BarrierLabels: []int{0}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(g, Params{Labels: b, PartitionLabels: []int{0, 0}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(g, Params{Labels: b, NumBlocks: -1})
	assert.ErrorIs(t, err, ErrInvalidParams)

	st, err := New(g, Params{Labels: b, NumBlocks: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, st.NumBlocks())
}

func TestBarrierBlocksMove(t *testing.T) {
	g, b := trianglePendant(t)
	m := NewMetrics(prometheus.NewRegistry())
	st := newState(t, g, Params{Labels: b, BarrierLabels: []int{0, 1}}, WithMetrics(m))

	S := entropy(t, st, sparseOnly())

	dS, err := st.VirtualMove(7, 0, MoveOptions{Multigraph: true})
	require.NoError(t, err)
	assert.True(t, math.IsInf(dS, 1))

	err = st.MoveVertex(7, 0)
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.Equal(t, b, st.Labels())
	assert.InDelta(t, S, entropy(t, st, sparseOnly()), tolerance)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarrierRejections))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MovesCommitted))

	// a new block inherits the barrier of the block it is opened from
	require.NoError(t, st.MoveVertex(0, 2))
	assert.Equal(t, 0, st.BarrierLabel(2))
	assert.ErrorIs(t, st.MoveVertex(7, 2), ErrInvalidMove)
	require.NoError(t, st.Validate())
}

func TestNegativeBlockRejected(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})
	assert.ErrorIs(t, st.MoveVertex(0, -1), ErrInvalidMove)
	assert.Equal(t, b, st.Labels())
}

func TestDenseFormulationUnsupported(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})

	_, err := st.VirtualMove(0, 1, MoveOptions{Dense: true})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = st.VirtualMoveDense(0, 1, false)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = st.Entropy(EntropyOptions{Dense: true})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMetricsCount(t *testing.T) {
	g, b := trianglePendant(t)
	m := NewMetrics(prometheus.NewRegistry())
	st := newState(t, g, Params{Labels: b}, WithMetrics(m))

	_, err := st.VirtualMove(7, 0, MoveOptions{})
	require.NoError(t, err)
	_, err = st.VirtualMove(7, 1, MoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VirtualMoves))

	require.NoError(t, st.MoveVertex(7, 0))
	require.NoError(t, st.MoveVertex(7, 0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MovesCommitted))

	S := entropy(t, st, sparseOnly())
	assert.InDelta(t, S, testutil.ToFloat64(m.Entropy), tolerance)

	// clones report to the same instruments
	c := st.Clone()
	require.NoError(t, c.MoveVertex(0, 1))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MovesCommitted))
}

func TestCommittedMovesAreNotVirtualEvaluations(t *testing.T) {
	g, b := trianglePendant(t)
	m := NewMetrics(prometheus.NewRegistry())
	rec := &recorder{}
	st := newState(t, g, Params{Labels: b}, WithMetrics(m), WithObserver(rec))

	require.NoError(t, st.MoveVertex(7, 0))
	require.NoError(t, st.MoveVertex(3, 1))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.VirtualMoves))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MovesCommitted))
	require.Len(t, rec.events, 2)
	assert.InDelta(t, 7*math.Log(2)-4*math.Log(3), rec.events[0].DeltaS, tolerance)

	st.VirtualMoveSparse(7, 1, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VirtualMoves))
}

type recorder struct {
	events []MoveEvent
}

func (r *recorder) ObserveMove(ev MoveEvent) { r.events = append(r.events, ev) }

func TestObserverSeesCommittedMoves(t *testing.T) {
	g, b := trianglePendant(t)
	rec := &recorder{}
	st := newState(t, g, Params{Labels: b, DegCorr: true}, WithObserver(rec))

	want := st.VirtualMoveSparse(7, 0, true)
	require.NoError(t, st.MoveVertex(7, 0))
	require.NoError(t, st.MoveVertex(3, 1))
	assert.Error(t, st.MoveVertex(3, -2))

	require.Len(t, rec.events, 2)
	ev := rec.events[0]
	assert.Equal(t, st.Chain(), ev.Chain)
	assert.Equal(t, 1, ev.Seq)
	assert.Equal(t, halfedge.HalfEdgeID(7), ev.HalfEdge)
	assert.Equal(t, halfedge.NodeID(3), ev.Node)
	assert.Equal(t, 1, ev.From)
	assert.Equal(t, 0, ev.To)
	assert.InDelta(t, want, ev.DeltaS, tolerance)
	assert.Equal(t, 2, rec.events[1].Seq)

	c := st.Clone()
	require.NoError(t, c.MoveVertex(0, 1))
	assert.Len(t, rec.events, 2)
	assert.NotEqual(t, st.Chain(), c.Chain())
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := randomGraph(t, rng, 12, 30, true)
	st := newState(t, g, Params{Labels: randomLabels(rng, g.NumHalfEdges(), 4), DegCorr: true})
	st.InitMCMC(1, true)

	labels := st.Labels()
	S := entropy(t, st, EntropyOptions{Multigraph: true, DegEntropy: true, PartitionDL: true, DegreeDL: true, EdgesDL: true})

	c := st.Clone()
	for i := 0; i < 40; i++ {
		h := halfedge.HalfEdgeID(rng.Intn(g.NumHalfEdges()))
		require.NoError(t, c.MoveVertex(h, rng.Intn(5)))
	}
	require.NoError(t, c.Validate())
	require.NoError(t, st.Validate())

	assert.Equal(t, labels, st.Labels())
	assert.InDelta(t, S,
		entropy(t, st, EntropyOptions{Multigraph: true, DegEntropy: true, PartitionDL: true, DegreeDL: true, EdgesDL: true}),
		tolerance)
	assert.NotNil(t, c.EdgeGroups())
	for r := 0; r < c.NumBlocks(); r++ {
		assert.Equal(t, c.HalfEdgeCount(r), c.EdgeGroups().Size(r))
	}
	for r := 0; r < st.NumBlocks(); r++ {
		assert.Equal(t, st.HalfEdgeCount(r), st.EdgeGroups().Size(r))
	}
}

func TestIndexKindsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, directed := range []bool{false, true} {
		g := randomGraph(t, rng, 15, 40, directed)
		b := randomLabels(rng, g.NumHalfEdges(), 5)

		dense := newState(t, g, Params{Labels: b, DegCorr: true, Index: IndexDense})
		hash := newState(t, g, Params{Labels: b, DegCorr: true, Index: IndexHash})
		auto := newState(t, g, Params{Labels: b, DegCorr: true, DenseMaxBlocks: 2})
		assert.Equal(t, IndexDense, dense.BlockGraph().Kind())
		assert.Equal(t, IndexHash, hash.BlockGraph().Kind())
		assert.Equal(t, IndexHash, auto.BlockGraph().Kind())

		for i := 0; i < 60; i++ {
			h := halfedge.HalfEdgeID(rng.Intn(g.NumHalfEdges()))
			nr := rng.Intn(7)
			assert.InDelta(t, dense.VirtualMoveSparse(h, nr, true), hash.VirtualMoveSparse(h, nr, true), tolerance)
			require.NoError(t, dense.MoveVertex(h, nr))
			require.NoError(t, hash.MoveVertex(h, nr))
		}
		require.NoError(t, dense.Validate())
		require.NoError(t, hash.Validate())
		assert.InDelta(t, entropy(t, dense, sparseOnly()), entropy(t, hash, sparseOnly()), tolerance)
		assert.Equal(t, dense.BlockGraph().NumBlockEdges(), hash.BlockGraph().NumBlockEdges())
	}
}

func TestSetPartition(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})

	target := []int{1, 1, 0, 0, 2, 2, 0, 0}
	require.NoError(t, st.SetPartition(target))
	require.NoError(t, st.Validate())
	assert.Equal(t, target, st.Labels())

	fresh := newState(t, g, Params{Labels: target})
	assert.InDelta(t, entropy(t, fresh, sparseOnly()), entropy(t, st, sparseOnly()), tolerance)

	assert.ErrorIs(t, st.SetPartition([]int{0}), ErrInvalidParams)
}

func TestInitMCMC(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})

	st.InitMCMC(math.Inf(1), false)
	assert.Nil(t, st.EdgeGroups())
	assert.False(t, st.PartitionStatsEnabled())

	st.InitMCMC(0.5, true)
	require.NotNil(t, st.EdgeGroups())
	assert.Equal(t, 7, st.EdgeGroups().Size(0))
	assert.Equal(t, 1, st.EdgeGroups().Size(1))
	assert.True(t, st.PartitionStatsEnabled())

	require.NoError(t, st.MoveVertex(7, 0))
	assert.Equal(t, 8, st.EdgeGroups().Size(0))
	assert.Equal(t, 0, st.EdgeGroups().Size(1))

	st.InitMCMC(0.5, false)
	assert.False(t, st.PartitionStatsEnabled())
}

func TestValidateDetectsCorruption(t *testing.T) {
	g, b := trianglePendant(t)

	st := newState(t, g, Params{Labels: b})
	st.mrp[1]++
	assert.ErrorIs(t, st.Validate(), ErrCorrupted)

	st = newState(t, g, Params{Labels: b})
	st.wr[0] = 1
	assert.ErrorIs(t, st.Validate(), ErrCorrupted)

	st = newState(t, g, Params{Labels: b})
	st.bg.addMrs(st.bg.Get(0, 0), 1)
	assert.ErrorIs(t, st.Validate(), ErrCorrupted)

	st = newState(t, g, Params{Labels: b})
	st.b[7] = 0
	assert.ErrorIs(t, st.Validate(), ErrCorrupted)

	st = newState(t, g, Params{Labels: b})
	st.InitMCMC(1, false)
	require.NoError(t, st.Validate())
	st.egroups.remove(0, 0)
	assert.ErrorIs(t, st.Validate(), ErrCorrupted)
}

func TestMoveVertexHaltsOnCorruption(t *testing.T) {
	g, b := trianglePendant(t)
	requireCorrupted := func(t *testing.T, st *State, h halfedge.HalfEdgeID, nr int) {
		t.Helper()
		defer func() {
			rec := recover()
			require.NotNil(t, rec, "move did not halt")
			err, ok := rec.(error)
			require.True(t, ok, "panic value %v is not an error", rec)
			assert.ErrorIs(t, err, ErrCorrupted)
		}()
		_ = st.MoveVertex(h, nr)
	}

	t.Run("negative multiplicity", func(t *testing.T) {
		st := newState(t, g, Params{Labels: b})
		// edge 3 joins blocks 0 and 1 once; drop its count to zero first
		st.bg.addMrs(st.bg.Get(0, 1), -1)
		requireCorrupted(t, st, 7, 0)
	})

	t.Run("missing block edge", func(t *testing.T) {
		st := newState(t, g, Params{Labels: b})
		st.bg.SetBlockEdgeOf(0, NullBlockEdge)
		requireCorrupted(t, st, 0, 1)
	})
}

func TestRandomNeighbour(t *testing.T) {
	g, b := trianglePendant(t)
	st := newState(t, g, Params{Labels: b})
	rng := rand.New(rand.NewSource(3))

	seen := map[halfedge.HalfEdgeID]bool{}
	for i := 0; i < 200; i++ {
		w := st.RandomNeighbour(3, rng)
		assert.NotEqual(t, halfedge.NodeID(2), g.Node(w))
		seen[w] = true
	}
	// node 2 reaches node 1, node 0 and node 3
	assert.Len(t, seen, 3)
}
