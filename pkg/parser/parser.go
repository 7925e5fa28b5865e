// Package parser reads the text inputs of the overlapping block model
// tools: edge lists with optional half-edge blocks, per-node labels,
// plain label vectors and move lists.
package parser

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"

	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
)

// Line is one edge of an edge list. Blocks holds the blocks of the source
// and target half-edges when the line carried them.
type Line struct {
	From, To int64
	Blocks   [2]int
	Labelled bool
}

// EdgeList is a parsed edge list. Lines keep file order.
type EdgeList struct {
	Directed bool
	Lines    []Line
}

// Move is one entry of a move list: half-edge h goes to block To.
type Move struct {
	HalfEdge halfedge.HalfEdgeID
	To       int
}

// scan calls fn with the fields of every non-empty, non-comment line.
func scan(r io.Reader, fn func(lineNum int, parts []string) error) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		if err := fn(lineNum, strings.Fields(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func openAnd[T any](filename string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(filename)
	if err != nil {
		return zero, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	v, err := read(file)
	if err != nil {
		return zero, errors.Wrapf(err, "reading %s", filename)
	}
	return v, nil
}

// ReadEdgeList parses lines of the form "u v" or "u v r s", where u and v
// are node ids and r, s the blocks of the u and v half-edges. Either every
// line carries blocks or none does.
func ReadEdgeList(r io.Reader, directed bool) (*EdgeList, error) {
	el := &EdgeList{Directed: directed}
	labelled := -1
	err := scan(r, func(lineNum int, parts []string) error {
		if len(parts) != 2 && len(parts) != 4 {
			return errors.Errorf("invalid edge format on line %d: expected 'from to [block_from block_to]'", lineNum)
		}
		var l Line
		var err error
		if l.From, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return errors.Wrapf(err, "invalid source node on line %d", lineNum)
		}
		if l.To, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return errors.Wrapf(err, "invalid target node on line %d", lineNum)
		}

		has := 0
		if len(parts) == 4 {
			has = 1
			for i := 0; i < 2; i++ {
				if l.Blocks[i], err = strconv.Atoi(parts[2+i]); err != nil || l.Blocks[i] < 0 {
					return errors.Errorf("invalid block %q on line %d", parts[2+i], lineNum)
				}
			}
			l.Labelled = true
		}
		if labelled == -1 {
			labelled = has
		} else if labelled != has {
			return errors.Errorf("line %d: blocks must be given on every line or none", lineNum)
		}

		el.Lines = append(el.Lines, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return el, nil
}

// ReadEdgeListFile is ReadEdgeList on a file.
func ReadEdgeListFile(filename string, directed bool) (*EdgeList, error) {
	return openAnd(filename, func(r io.Reader) (*EdgeList, error) {
		return ReadEdgeList(r, directed)
	})
}

// Multigraph returns the edge list as a gonum multigraph. Line ids are the
// file positions.
func (el *EdgeList) Multigraph() graph.Multigraph {
	type builder interface {
		graph.Multigraph
		SetLine(graph.Line)
	}
	var g builder
	if el.Directed {
		g = multi.NewDirectedGraph()
	} else {
		g = multi.NewUndirectedGraph()
	}
	for i, l := range el.Lines {
		g.SetLine(multi.Line{F: multi.Node(l.From), T: multi.Node(l.To), UID: int64(i)})
	}
	return g
}

// Graph decomposes the edge list into half-edges.
func (el *EdgeList) Graph() (*halfedge.Graph, error) {
	return halfedge.FromMultigraph(el.Multigraph())
}

// order returns the file positions in the edge order of Graph, and whether
// each line is reversed there.
func (el *EdgeList) order() ([]int, []bool) {
	idx := make([]int, len(el.Lines))
	flip := make([]bool, len(el.Lines))
	key := make([][2]int64, len(el.Lines))
	for i, l := range el.Lines {
		idx[i] = i
		key[i] = [2]int64{l.From, l.To}
		if !el.Directed && l.To < l.From {
			key[i] = [2]int64{l.To, l.From}
			flip[i] = true
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := key[idx[a]], key[idx[b]]
		if ka[0] != kb[0] {
			return ka[0] < kb[0]
		}
		return ka[1] < kb[1]
	})
	return idx, flip
}

// HalfEdgeLabels returns the block of every half-edge of Graph(), or false
// when the file carried no blocks.
func (el *EdgeList) HalfEdgeLabels() ([]int, bool) {
	if len(el.Lines) == 0 || !el.Lines[0].Labelled {
		return nil, false
	}
	idx, flip := el.order()
	b := make([]int, 2*len(el.Lines))
	for e, i := range idx {
		r, s := el.Lines[i].Blocks[0], el.Lines[i].Blocks[1]
		if flip[i] {
			r, s = s, r
		}
		b[halfedge.SourceHalf(halfedge.EdgeID(e))] = r
		b[halfedge.TargetHalf(halfedge.EdgeID(e))] = s
	}
	return b, true
}

// ReadLabels parses whitespace separated non-negative integers.
func ReadLabels(r io.Reader) ([]int, error) {
	var labels []int
	err := scan(r, func(lineNum int, parts []string) error {
		for _, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil || v < 0 {
				return errors.Errorf("invalid label %q on line %d", p, lineNum)
			}
			labels = append(labels, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// ReadLabelsFile is ReadLabels on a file.
func ReadLabelsFile(filename string) ([]int, error) {
	return openAnd(filename, ReadLabels)
}

// ReadNodeLabels parses "node label" lines.
func ReadNodeLabels(r io.Reader) (map[int64]int, error) {
	labels := make(map[int64]int)
	err := scan(r, func(lineNum int, parts []string) error {
		if len(parts) != 2 {
			return errors.Errorf("invalid format on line %d: expected 'node label'", lineNum)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid node on line %d", lineNum)
		}
		v, err := strconv.Atoi(parts[1])
		if err != nil || v < 0 {
			return errors.Errorf("invalid label %q on line %d", parts[1], lineNum)
		}
		if _, dup := labels[id]; dup {
			return errors.Errorf("node %d labelled twice (line %d)", id, lineNum)
		}
		labels[id] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// ReadNodeLabelsFile is ReadNodeLabels on a file.
func ReadNodeLabelsFile(filename string) (map[int64]int, error) {
	return openAnd(filename, ReadNodeLabels)
}

// AlignNodeLabels orders per-node labels by the node ids of g. Nodes
// missing from labels get def.
func AlignNodeLabels(g *halfedge.Graph, labels map[int64]int, def int) []int {
	out := make([]int, g.NumNodes())
	for u := range out {
		v, ok := labels[g.ExternalID(halfedge.NodeID(u))]
		if !ok {
			v = def
		}
		out[u] = v
	}
	return out
}

// ReadMoves parses "half_edge block" lines.
func ReadMoves(r io.Reader) ([]Move, error) {
	var moves []Move
	err := scan(r, func(lineNum int, parts []string) error {
		if len(parts) != 2 {
			return errors.Errorf("invalid move on line %d: expected 'half_edge block'", lineNum)
		}
		h, err := strconv.Atoi(parts[0])
		if err != nil || h < 0 {
			return errors.Errorf("invalid half-edge %q on line %d", parts[0], lineNum)
		}
		to, err := strconv.Atoi(parts[1])
		if err != nil || to < 0 {
			return errors.Errorf("invalid block %q on line %d", parts[1], lineNum)
		}
		moves = append(moves, Move{HalfEdge: halfedge.HalfEdgeID(h), To: to})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

// ReadMovesFile is ReadMoves on a file.
func ReadMovesFile(filename string) ([]Move, error) {
	return openAnd(filename, ReadMoves)
}
