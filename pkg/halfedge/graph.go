package halfedge

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
)

// NodeID identifies a node of the original graph.
type NodeID int

// EdgeID identifies an edge of the original graph.
type EdgeID int

// HalfEdgeID identifies one endpoint copy of an edge. Edge e owns the
// half-edges 2e (source side) and 2e+1 (target side).
type HalfEdgeID int

// Null marks a missing half-edge neighbour.
const Null HalfEdgeID = -1

// EdgeOf returns the edge owning h.
func EdgeOf(h HalfEdgeID) EdgeID { return EdgeID(h / 2) }

// Partner returns the other half-edge of h's edge.
func Partner(h HalfEdgeID) HalfEdgeID { return h ^ 1 }

// IsSource reports whether h is the source side of its edge.
func IsSource(h HalfEdgeID) bool { return h%2 == 0 }

// SourceHalf returns the source-side half-edge of e.
func SourceHalf(e EdgeID) HalfEdgeID { return HalfEdgeID(2 * e) }

// TargetHalf returns the target-side half-edge of e.
func TargetHalf(e EdgeID) HalfEdgeID { return HalfEdgeID(2*e + 1) }

// Graph is the half-edge decomposition of an original graph. Topology is
// fixed once built; only block labels change during inference.
type Graph struct {
	directed  bool
	ids       []int64 // NodeID -> external id
	index     map[int64]NodeID
	src, tgt  []NodeID
	halfEdges [][]HalfEdgeID
}

// NewGraph returns an edgeless graph over numNodes nodes, with external ids
// 0..numNodes-1.
func NewGraph(numNodes int, directed bool) *Graph {
	g := &Graph{
		directed:  directed,
		ids:       make([]int64, numNodes),
		index:     make(map[int64]NodeID, numNodes),
		halfEdges: make([][]HalfEdgeID, numNodes),
	}
	for i := 0; i < numNodes; i++ {
		g.ids[i] = int64(i)
		g.index[int64(i)] = NodeID(i)
	}
	return g
}

// AddEdge adds the edge u -> v (u -- v when undirected) and returns its id.
func (g *Graph) AddEdge(u, v NodeID) (EdgeID, error) {
	if u < 0 || int(u) >= len(g.ids) || v < 0 || int(v) >= len(g.ids) {
		return 0, errors.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, len(g.ids))
	}
	e := EdgeID(len(g.src))
	g.src = append(g.src, u)
	g.tgt = append(g.tgt, v)
	g.halfEdges[u] = append(g.halfEdges[u], SourceHalf(e))
	g.halfEdges[v] = append(g.halfEdges[v], TargetHalf(e))
	return e, nil
}

// FromMultigraph decomposes a gonum multigraph. Undirected multigraphs
// (graph.UndirectedMultigraph) yield an undirected half-edge graph; any other
// multigraph is treated as directed. Nodes and lines are visited in id
// order, so the resulting ids are deterministic.
func FromMultigraph(mg graph.Multigraph) (*Graph, error) {
	_, undirected := mg.(graph.UndirectedMultigraph)

	nodes := graph.NodesOf(mg.Nodes())
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })

	g := &Graph{
		directed:  !undirected,
		ids:       make([]int64, len(nodes)),
		index:     make(map[int64]NodeID, len(nodes)),
		halfEdges: make([][]HalfEdgeID, len(nodes)),
	}
	for i, n := range nodes {
		g.ids[i] = n.ID()
		g.index[n.ID()] = NodeID(i)
	}

	for _, n := range nodes {
		uid := n.ID()
		to := graph.NodesOf(mg.From(uid))
		sort.Slice(to, func(i, j int) bool { return to[i].ID() < to[j].ID() })
		for _, m := range to {
			vid := m.ID()
			if undirected && vid < uid {
				continue
			}
			lines := graph.LinesOf(mg.Lines(uid, vid))
			sort.Slice(lines, func(i, j int) bool { return lines[i].ID() < lines[j].ID() })
			for range lines {
				if _, err := g.AddEdge(g.index[uid], g.index[vid]); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// Directed reports whether the original graph is directed.
func (g *Graph) Directed() bool { return g.directed }

// NumNodes is the number of original nodes.
func (g *Graph) NumNodes() int { return len(g.ids) }

// NumEdges is the number of original edges.
func (g *Graph) NumEdges() int { return len(g.src) }

// NumHalfEdges is twice the number of edges.
func (g *Graph) NumHalfEdges() int { return 2 * len(g.src) }

// ExternalID returns the id the node had in the source multigraph.
func (g *Graph) ExternalID(u NodeID) int64 { return g.ids[u] }

// NodeOf returns the node carrying external id, if any.
func (g *Graph) NodeOf(id int64) (NodeID, bool) {
	u, ok := g.index[id]
	return u, ok
}

// Node returns the node owning h.
func (g *Graph) Node(h HalfEdgeID) NodeID {
	e := EdgeOf(h)
	if IsSource(h) {
		return g.src[e]
	}
	return g.tgt[e]
}

// Source returns the source node of e.
func (g *Graph) Source(e EdgeID) NodeID { return g.src[e] }

// Target returns the target node of e.
func (g *Graph) Target(e EdgeID) NodeID { return g.tgt[e] }

// HalfEdges returns the half-edges of u. The slice must not be modified.
func (g *Graph) HalfEdges(u NodeID) []HalfEdgeID { return g.halfEdges[u] }

// OutDegree is the out-degree of a half-edge: 1 for source halves of
// directed edges and for every undirected half-edge, else 0.
func (g *Graph) OutDegree(h HalfEdgeID) int {
	if !g.directed || IsSource(h) {
		return 1
	}
	return 0
}

// InDegree is the in-degree of a half-edge: 1 for target halves of directed
// edges, else 0.
func (g *Graph) InDegree(h HalfEdgeID) int {
	if g.directed && !IsSource(h) {
		return 1
	}
	return 0
}

// OutNeighbour returns the half-edge h points to, or Null.
func (g *Graph) OutNeighbour(h HalfEdgeID) HalfEdgeID {
	if g.OutDegree(h) == 0 {
		return Null
	}
	return Partner(h)
}

// InNeighbour returns the half-edge pointing to h, or Null. Undirected
// half-edges only have an out neighbour.
func (g *Graph) InNeighbour(h HalfEdgeID) HalfEdgeID {
	if g.InDegree(h) == 0 {
		return Null
	}
	return Partner(h)
}
