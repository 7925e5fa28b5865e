package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

func TestSingleEdgeSingleBlock(t *testing.T) {
	s := NewStats(false)
	s.AddNode(0, []halfedge.Membership{{Block: 0, Out: 1}})
	s.AddNode(1, []halfedge.Membership{{Block: 0, Out: 1}})

	assert.Equal(t, 2, s.NumNodes())
	assert.Equal(t, 1, s.NumEdges())
	assert.Equal(t, 1, s.ActualB())
	assert.Equal(t, 1, s.NumMixtures())

	assert.InDelta(t, 0.0, s.PartitionDL(), 1e-12)
	assert.InDelta(t, 0.0, s.EdgesDL(), 1e-12)
	assert.InDelta(t, math.Log(2), s.DegDL(DegDLOptions{}), 1e-12)
	assert.InDelta(t, 0.0, s.DegDL(DegDLOptions{Entropic: true}), 1e-12)
}

func TestMoveUpdatesMixtures(t *testing.T) {
	s := NewStats(false)
	s.AddNode(0, []halfedge.Membership{{Block: 0, Out: 2}})
	s.AddNode(1, []halfedge.Membership{{Block: 0, Out: 1}})
	s.AddNode(2, []halfedge.Membership{{Block: 1, Out: 1}})

	require.Equal(t, 2, s.NumMixtures())

	// node 0 now straddles blocks 0 and 1
	s.Move(0, 0, 1, 0, 1)
	assert.Equal(t, []halfedge.Membership{
		{Block: 0, Out: 1},
		{Block: 1, Out: 1},
	}, s.Membership(0))
	assert.Equal(t, 3, s.NumMixtures())
	assert.Equal(t, 2, s.ActualB())

	// and leaves block 0 entirely
	s.Move(0, 0, 1, 0, 1)
	assert.Equal(t, []halfedge.Membership{{Block: 1, Out: 2}}, s.Membership(0))
	assert.Equal(t, 2, s.NumMixtures())

	s.Move(1, 0, 1, 0, 1)
	assert.Equal(t, 1, s.ActualB())
	assert.Equal(t, 1, s.NumMixtures())

	// unknown nodes and no-op moves are ignored
	s.Move(9, 0, 1, 0, 1)
	s.Move(1, 0, 1, 1, 1)
	assert.Nil(t, s.Membership(9))
	assert.False(t, s.Has(9))
}

// randomStats builds stats over nodes whose half-edges are spread across
// numBlocks blocks, and returns the per-node half-edge labels.
func randomStats(rng *rand.Rand, directed bool, numNodes, numBlocks int) (*Stats, [][]int) {
	s := NewStats(directed)
	labels := make([][]int, numNodes)
	for u := range labels {
		k := 1 + rng.Intn(4)
		labels[u] = make([]int, k)
		deg := make(map[int]halfedge.Degree)
		for i := range labels[u] {
			r := rng.Intn(numBlocks)
			labels[u][i] = r
			d := deg[r]
			if directed && i%2 == 1 {
				d.In++
			} else {
				d.Out++
			}
			deg[r] = d
		}
		var ms []halfedge.Membership
		for r := 0; r < numBlocks; r++ {
			if d, ok := deg[r]; ok {
				ms = append(ms, halfedge.Membership{Block: r, In: d.In, Out: d.Out})
			}
		}
		s.AddNode(u, ms)
	}
	return s, labels
}

func TestDeltasMatchCommittedChange(t *testing.T) {
	variants := []DegDLOptions{
		{},
		{Entropic: true},
		{Alt: true},
		{XiFast: true},
	}

	for _, directed := range []bool{false, true} {
		rng := rand.New(rand.NewSource(11))
		s, labels := randomStats(rng, directed, 12, 4)

		for step := 0; step < 300; step++ {
			u := rng.Intn(len(labels))
			i := rng.Intn(len(labels[u]))
			r := labels[u][i]
			nr := rng.Intn(5)

			kin, kout := 0, 1
			if directed && i%2 == 1 {
				kin, kout = 1, 0
			}

			dp := s.DeltaPartitionDL(u, kin, kout, r, nr)
			de := s.DeltaEdgesDL(u, kin, kout, r, nr)
			dd := make([]float64, len(variants))
			for j, opts := range variants {
				dd[j] = s.DeltaDegDL(u, kin, kout, r, nr, opts)
			}

			before := s.Clone()
			s.Move(u, kin, kout, r, nr)
			labels[u][i] = nr

			require.InDelta(t, s.PartitionDL()-before.PartitionDL(), dp, 1e-8,
				"partition dl, directed=%v step=%d", directed, step)
			require.InDelta(t, s.EdgesDL()-before.EdgesDL(), de, 1e-8,
				"edges dl, directed=%v step=%d", directed, step)
			for j, opts := range variants {
				require.InDelta(t, s.DegDL(opts)-before.DegDL(opts), dd[j], 1e-8,
					"deg dl %+v, directed=%v step=%d", opts, directed, step)
			}
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s, labels := randomStats(rng, false, 8, 3)
	c := s.Clone()
	want := c.PartitionDL()
	m0 := c.Membership(0)

	for u := range labels {
		for i, r := range labels[u] {
			s.Move(u, 0, 1, r, 2)
			labels[u][i] = 2
		}
	}
	assert.Equal(t, 1, s.ActualB())
	assert.Equal(t, 1, s.NumMixtures())
	assert.InDelta(t, want, c.PartitionDL(), 1e-12)
	assert.Equal(t, m0, c.Membership(0))
	assert.Equal(t, []halfedge.Membership{{Block: 2, Out: len(labels[0])}}, s.Membership(0))
}
