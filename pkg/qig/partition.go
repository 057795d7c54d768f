package qig

import (
	"fmt"
	"slices"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Part is one maximal clique with its combined per position intersect.
type Part struct {
	Key        string
	IDs        cq.IDSet
	Types      []schema.AttrType
	Intersects []schema.Intersect
}

// PartSet holds the parts in clique discovery order.
type PartSet struct {
	Parts []*Part
	byKey map[string]*Part
}

func (ps *PartSet) Len() int { return len(ps.Parts) }

func (ps *PartSet) Get(key string) (*Part, bool) {
	p, ok := ps.byKey[key]
	return p, ok
}

// Covered returns the union of all part ids.
func (ps *PartSet) Covered() cq.IDSet {
	out := cq.NewIDSet()
	for _, p := range ps.Parts {
		out = out.Union(p.IDs)
	}
	return out
}

// PartitionSet wraps the maximal cliques as named parts. Keys are the type
// signature, suffixed with a per signature counter in range mode. In
// position mode the parts come from partitionByRange over the remaining
// vertices.
func (g *Graph) PartitionSet() *PartSet {
	if g.mode == ModePosition {
		ids := cq.NewIDSet()
		for id := range g.vertices {
			ids.Add(id)
		}
		return partitionByRange(g.cqs.Subset(ids), g.attrs)
	}

	ps := &PartSet{byKey: make(map[string]*Part)}
	counters := make(map[string]int)

	for _, ids := range g.MaximalCliques() {
		if len(ids) == 0 {
			continue
		}
		first := g.vertices[ids[0]]
		key := first.signature
		if g.mode == ModeRange {
			key = fmt.Sprintf("%s/%d", first.signature, counters[first.signature])
			counters[first.signature]++
		}
		p := &Part{
			Key:        key,
			IDs:        cq.NewIDSet(ids...),
			Types:      slices.Clone(first.types),
			Intersects: g.cliqueIntersects(ids),
		}
		ps.Parts = append(ps.Parts, p)
		ps.byKey[key] = p
	}
	return ps
}

// cliqueIntersects meets every pairwise edge of the clique per position. A
// singleton keeps its own attribute ranges.
func (g *Graph) cliqueIntersects(ids []int) []schema.Intersect {
	first := g.vertices[ids[0]]
	out := make([]schema.Intersect, len(first.types))
	for pos, typ := range first.types {
		out[pos] = schema.All(typ)
		if a := first.attrs[pos]; a != nil && g.mode == ModeRange {
			if r := a.Range(); !r.IsEmpty() {
				out[pos] = r
			}
		}
	}
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			meta, ok := g.adj[a][b]
			if !ok {
				continue
			}
			for pos, in := range meta {
				out[pos] = out[pos].Meet(in)
			}
		}
	}
	return out
}
