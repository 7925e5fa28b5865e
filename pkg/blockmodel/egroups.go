package blockmodel

import (
	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/sampler"
)

// EdgeGroups holds, per block, a sampler over the half-edges labelled with
// that block. Drawing a half-edge of block t and reading its partner's
// block samples a neighbouring block of t proportionally to mrs.
type EdgeGroups struct {
	groups []*sampler.Dynamic[halfedge.HalfEdgeID]
	slot   []int // half-edge -> slot in its group
}

func newEdgeGroups(b []int, numBlocks int) *EdgeGroups {
	eg := &EdgeGroups{slot: make([]int, len(b))}
	eg.ensure(numBlocks)
	for h, r := range b {
		eg.insert(halfedge.HalfEdgeID(h), r)
	}
	return eg
}

func (eg *EdgeGroups) ensure(n int) {
	for len(eg.groups) < n {
		eg.groups = append(eg.groups, sampler.NewDynamic[halfedge.HalfEdgeID]())
	}
}

func (eg *EdgeGroups) insert(h halfedge.HalfEdgeID, r int) {
	eg.ensure(r + 1)
	eg.slot[h] = eg.groups[r].Insert(h, 1)
}

func (eg *EdgeGroups) remove(h halfedge.HalfEdgeID, r int) {
	eg.groups[r].Remove(eg.slot[h])
	eg.slot[h] = -1
}

// Sample draws a half-edge of block r, weighted by edge weight.
func (eg *EdgeGroups) Sample(r int, rng sampler.RNG) (halfedge.HalfEdgeID, bool) {
	if r >= len(eg.groups) {
		return halfedge.Null, false
	}
	return eg.groups[r].Sample(rng)
}

// Size is the number of half-edges held for block r.
func (eg *EdgeGroups) Size(r int) int {
	if r >= len(eg.groups) {
		return 0
	}
	return eg.groups[r].Len()
}

// Weight is the total sampling weight held for block r.
func (eg *EdgeGroups) Weight(r int) float64 {
	if r >= len(eg.groups) {
		return 0
	}
	return eg.groups[r].Total()
}

func (eg *EdgeGroups) clone() *EdgeGroups {
	c := &EdgeGroups{
		groups: make([]*sampler.Dynamic[halfedge.HalfEdgeID], len(eg.groups)),
		slot:   append([]int(nil), eg.slot...),
	}
	for r, g := range eg.groups {
		c.groups[r] = g.Clone()
	}
	return c
}
