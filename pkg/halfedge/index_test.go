package halfedge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph/multi"
)

// trianglePendant is 0-1, 1-2, 0-2, 2-3 with node 3's half-edge in block 1.
func trianglePendant(t *testing.T) (*Graph, []int) {
	t.Helper()
	g := NewGraph(4, false)
	for _, e := range [][2]NodeID{{0, 1}, {1, 2}, {0, 2}, {2, 3}} {
		_, err := g.AddEdge(e[0], e[1])
		require.NoError(t, err)
	}
	return g, []int{0, 0, 0, 0, 0, 0, 0, 1}
}

func TestGraphDecomposition(t *testing.T) {
	g, _ := trianglePendant(t)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 4, g.NumEdges())
	assert.Equal(t, 8, g.NumHalfEdges())
	assert.Equal(t, []HalfEdgeID{1, 2}, g.HalfEdges(1))
	assert.Equal(t, []HalfEdgeID{3, 5, 6}, g.HalfEdges(2))

	total := 0
	for u := NodeID(0); int(u) < g.NumNodes(); u++ {
		total += len(g.HalfEdges(u))
		for _, h := range g.HalfEdges(u) {
			assert.Equal(t, u, g.Node(h))
			assert.Equal(t, 1, g.OutDegree(h))
			assert.Equal(t, 0, g.InDegree(h))
			assert.Equal(t, Partner(h), g.OutNeighbour(h))
			assert.Equal(t, Null, g.InNeighbour(h))
		}
	}
	assert.Equal(t, 2*g.NumEdges(), total)

	_, err := g.AddEdge(0, 9)
	assert.ErrorContains(t, err, "node index out of range")
}

func TestGraphDirectedNeighbours(t *testing.T) {
	g := NewGraph(2, true)
	e, err := g.AddEdge(0, 1)
	require.NoError(t, err)

	src, tgt := SourceHalf(e), TargetHalf(e)
	assert.Equal(t, 1, g.OutDegree(src))
	assert.Equal(t, 0, g.InDegree(src))
	assert.Equal(t, 0, g.OutDegree(tgt))
	assert.Equal(t, 1, g.InDegree(tgt))
	assert.Equal(t, tgt, g.OutNeighbour(src))
	assert.Equal(t, Null, g.InNeighbour(src))
	assert.Equal(t, src, g.InNeighbour(tgt))
	assert.Equal(t, Null, g.OutNeighbour(tgt))
}

func TestFromMultigraph(t *testing.T) {
	t.Run("undirected", func(t *testing.T) {
		mg := multi.NewUndirectedGraph()
		for _, e := range [][2]int64{{10, 20}, {20, 10}, {20, 30}, {30, 30}} {
			mg.SetLine(mg.NewLine(multi.Node(e[0]), multi.Node(e[1])))
		}

		g, err := FromMultigraph(mg)
		require.NoError(t, err)
		assert.False(t, g.Directed())
		assert.Equal(t, 3, g.NumNodes())
		assert.Equal(t, 4, g.NumEdges())

		u, ok := g.NodeOf(20)
		require.True(t, ok)
		assert.Equal(t, int64(20), g.ExternalID(u))
		// two parallel edges to 10, one to 30
		assert.Len(t, g.HalfEdges(u), 3)

		w, _ := g.NodeOf(30)
		// a self-loop contributes both of its half-edges
		assert.Len(t, g.HalfEdges(w), 3)
	})

	t.Run("directed", func(t *testing.T) {
		mg := multi.NewDirectedGraph()
		for _, e := range [][2]int64{{0, 1}, {1, 0}, {1, 2}} {
			mg.SetLine(mg.NewLine(multi.Node(e[0]), multi.Node(e[1])))
		}

		g, err := FromMultigraph(mg)
		require.NoError(t, err)
		assert.True(t, g.Directed())
		assert.Equal(t, 3, g.NumEdges())
		for e := EdgeID(0); int(e) < g.NumEdges(); e++ {
			assert.Equal(t, 1, g.OutDegree(SourceHalf(e)))
			assert.Equal(t, 1, g.InDegree(TargetHalf(e)))
		}
	})
}

func TestIndexSizes(t *testing.T) {
	g, b := trianglePendant(t)
	idx := NewIndex(g, b, 2)

	assert.Equal(t, 3, idx.BlockSize(0))
	assert.Equal(t, 1, idx.BlockSize(1))
	assert.Equal(t, 7, idx.HalfEdgeCount(0))
	assert.Equal(t, 1, idx.HalfEdgeCount(1))

	// node 3 only has h7, so removing it empties block 1
	assert.Equal(t, 0, idx.VirtualRemoveSize(7, 1, 0, 0))
	// node 2 keeps two more half-edges in block 0
	assert.Equal(t, 3, idx.VirtualRemoveSize(6, 0, 0, 0))
	assert.Equal(t, 4, idx.VirtualAddSize(7, 0))
	assert.Equal(t, 2, idx.VirtualAddSize(6, 1))
	assert.Equal(t, 1, idx.VirtualAddSize(7, 1))

	assert.Equal(t, []Membership{{Block: 0, In: 0, Out: 3}}, idx.NodeMembership(2))
	assert.Equal(t, []int{1}, idx.NodeBlocks(3))
}

func TestIndexAddRemove(t *testing.T) {
	g, b := trianglePendant(t)
	idx := NewIndex(g, b, 2)

	// move h6 (node 2's side of the pendant edge) into block 1
	idx.RemoveHalfEdge(6, 0, b)
	b[6] = 1
	idx.AddHalfEdge(6, 1, b)

	assert.Equal(t, 3, idx.BlockSize(0))
	assert.Equal(t, 2, idx.BlockSize(1))
	assert.Equal(t, 6, idx.HalfEdgeCount(0))
	assert.Equal(t, 2, idx.HalfEdgeCount(1))
	assert.Equal(t, []int{0, 1}, idx.NodeBlocks(2))
	assert.Equal(t, []Membership{
		{Block: 0, In: 0, Out: 2},
		{Block: 1, In: 0, Out: 1},
	}, idx.NodeMembership(2))

	c := idx.Clone()
	idx.RemoveHalfEdge(6, 1, b)
	b[6] = 0
	idx.AddHalfEdge(6, 0, b)

	assert.Equal(t, 1, idx.BlockSize(1))
	assert.Equal(t, 2, c.BlockSize(1))
	assert.Equal(t, []int{0, 1}, c.NodeBlocks(2))

	idx.EnsureBlocks(5)
	assert.Equal(t, 5, idx.NumBlocks())
	assert.Equal(t, 0, idx.BlockSize(4))
	assert.Equal(t, 2, c.NumBlocks())
}

func TestIndexVirtualMoveDS(t *testing.T) {
	g, b := trianglePendant(t)
	idx := NewIndex(g, b, 2)

	// node 2 has out-degree 3 in block 0 and 0 in block 1:
	// dS = ln 3! - ln 2! + ln 0! - ln 1!
	want := math.Log(6) - math.Log(2)
	assert.InDelta(t, want, idx.VirtualMoveDS(6, 0, 1, 0, 0), 1e-12)
	assert.InDelta(t, 0.0, idx.VirtualMoveDS(7, 1, 0, 0, 0), 1e-12)
}

func TestIndexParallelBundles(t *testing.T) {
	g := NewGraph(3, false)
	for _, e := range [][2]NodeID{{0, 1}, {0, 1}, {1, 0}, {1, 2}} {
		_, err := g.AddEdge(e[0], e[1])
		require.NoError(t, err)
	}
	b := make([]int, g.NumHalfEdges())
	idx := NewIndex(g, b, 2)

	bundles := idx.ParallelBundles()
	require.Len(t, bundles, 1)
	assert.Equal(t, map[BlockPair]int{{0, 0}: 3}, bundles[0])

	// the lone edge 1-2 is no bundle
	assert.Zero(t, idx.VirtualMoveParallelDS(6, 0, 1, b))

	ds := idx.VirtualMoveParallelDS(0, 0, 1, b)
	assert.InDelta(t, math.Log(2)-math.Log(6), ds, 1e-12)

	idx.RemoveHalfEdge(0, 0, b)
	b[0] = 1
	idx.AddHalfEdge(0, 1, b)
	assert.Equal(t, map[BlockPair]int{{0, 0}: 2, {0, 1}: 1}, idx.ParallelBundles()[0])

	// reversed target half lands on the same unordered pair
	assert.Zero(t, idx.VirtualMoveParallelDS(5, 0, 0, b))
	ds = idx.VirtualMoveParallelDS(5, 0, 1, b)
	assert.InDelta(t, math.Log(2)-math.Log(2), ds, 1e-12)
}

func TestIndexSampleHalfEdge(t *testing.T) {
	g, b := trianglePendant(t)
	idx := NewIndex(g, b, 2)
	rng := rand.New(rand.NewSource(3))

	seen := make(map[HalfEdgeID]int)
	for i := 0; i < 3000; i++ {
		h := idx.SampleHalfEdge(2, rng)
		require.Equal(t, NodeID(2), idx.Node(h))
		seen[h]++
	}
	assert.Len(t, seen, 3)
	for _, n := range seen {
		assert.InDelta(t, 1000, n, 150)
	}
}
