// Package qig builds the query intersection graph of a task: which
// candidate queries can return a common tuple.
package qig

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/emicklei/dot"

	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/clique"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Mode selects how much information the graph uses.
type Mode string

const (
	// ModeType connects queries with equal projection types.
	ModeType Mode = "type"
	// ModeRange also requires intersecting attributes at every position.
	ModeRange Mode = "range"
	// ModePosition keeps the range mode graph but partitions per position
	// with the attribute cliques of the AIG instead of the graph's cliques.
	ModePosition Mode = "position"
)

var ErrUnknownMode = errors.New("unknown qig mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeType, ModeRange, ModePosition:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type vertex struct {
	label     string
	signature string
	types     []schema.AttrType
	// attrs[i] is nil for aggregate projections.
	attrs []*schema.Attribute
}

// Graph is owned by a single task. Edges carry one intersect per position.
type Graph struct {
	mode     Mode
	vertices map[int]*vertex
	adj      map[int]map[int][]schema.Intersect

	// kept for position partitioning
	cqs   cq.Set
	attrs *aig.Graph
}

// Build constructs the graph over cqs. ModeRange and ModePosition need the
// database AIG.
func Build(mode Mode, cqs cq.Set, attrs *aig.Graph) (*Graph, error) {
	if mode != ModeType && attrs == nil {
		return nil, fmt.Errorf("%s mode requires an attribute intersection graph", mode)
	}
	g := &Graph{
		mode:     mode,
		cqs:      cqs,
		attrs:    attrs,
		vertices: make(map[int]*vertex, len(cqs)),
		adj:      make(map[int]map[int][]schema.Intersect, len(cqs)),
	}

	bySignature := make(map[string][]int)
	for _, id := range cqs.SortedIDs() {
		q := cqs[id]
		v := &vertex{
			label:     q.Label,
			signature: q.Signature(),
			types:     q.Types(),
			attrs:     make([]*schema.Attribute, len(q.Projections)),
		}
		for i, p := range q.Projections {
			v.attrs[i] = p.Attr
		}
		g.vertices[id] = v
		g.adj[id] = make(map[int][]schema.Intersect)
		bySignature[v.signature] = append(bySignature[v.signature], id)
	}

	for _, ids := range bySignature {
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				if meta, ok := g.connect(g.vertices[a], g.vertices[b], attrs); ok {
					g.adj[a][b] = meta
					g.adj[b][a] = meta
				}
			}
		}
	}
	return g, nil
}

// connect combines the position graphs: the pair is connected only if every
// position is.
func (g *Graph) connect(a, b *vertex, attrs *aig.Graph) ([]schema.Intersect, bool) {
	meta := make([]schema.Intersect, len(a.types))
	for pos := range a.types {
		in, ok := g.positionEdge(a, b, pos, attrs)
		if !ok {
			return nil, false
		}
		meta[pos] = in
	}
	return meta, true
}

func (g *Graph) positionEdge(a, b *vertex, pos int, attrs *aig.Graph) (schema.Intersect, bool) {
	typ := a.types[pos]
	if typ != b.types[pos] {
		return schema.Intersect{}, false
	}
	if g.mode == ModeType || typ == schema.TypeAggr {
		return schema.All(typ), true
	}

	x, y := a.attrs[pos], b.attrs[pos]
	if x == nil || y == nil {
		return schema.All(typ), true
	}
	if x.Key() == y.Key() {
		if r := x.Range(); !r.IsEmpty() {
			return r, true
		}
		return schema.All(typ), true
	}
	in, ok := attrs.Edge(x.Key(), y.Key())
	if !ok || in.IsEmpty() {
		return schema.Intersect{}, false
	}
	return in, true
}

func (g *Graph) Mode() Mode { return g.mode }

func (g *Graph) Len() int { return len(g.vertices) }

// IDs returns the live vertex ids.
func (g *Graph) IDs() cq.IDSet {
	out := make(cq.IDSet, len(g.vertices))
	for id := range g.vertices {
		out.Add(id)
	}
	return out
}

func (g *Graph) HasEdge(a, b int) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Edge returns the per position intersects between a and b.
func (g *Graph) Edge(a, b int) ([]schema.Intersect, bool) {
	meta, ok := g.adj[a][b]
	return meta, ok
}

func (g *Graph) Neighbors(id int) []int {
	out := make([]int, 0, len(g.adj[id]))
	for n := range g.adj[id] {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Update removes every vertex not in remaining.
func (g *Graph) Update(remaining cq.IDSet) {
	for id := range g.vertices {
		if remaining.Has(id) {
			continue
		}
		for n := range g.adj[id] {
			delete(g.adj[n], id)
		}
		delete(g.adj, id)
		delete(g.vertices, id)
	}
}

// TypeComponents groups the vertices by type signature. Components are
// ordered by signature and their ids ascending.
func (g *Graph) TypeComponents() [][]int {
	groups := make(map[string][]int)
	for id, v := range g.vertices {
		groups[v.signature] = append(groups[v.signature], id)
	}
	sigs := make([]string, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	slices.Sort(sigs)

	out := make([][]int, 0, len(sigs))
	for _, sig := range sigs {
		ids := groups[sig]
		slices.Sort(ids)
		out = append(out, ids)
	}
	return out
}

// MaximalCliques returns every maximal clique. In type mode these are the
// type components. In range mode the search runs per component, so a clique
// never mixes signatures.
func (g *Graph) MaximalCliques() [][]int {
	components := g.TypeComponents()
	if g.mode == ModeType {
		return components
	}
	var out [][]int
	for _, component := range components {
		out = append(out, clique.Maximal(component, g.HasEdge)...)
	}
	return out
}

// Constraints returns the narrowing predicates for a vertex: at each
// position the union of the intersects shared with its neighbours. Text
// positions without a finite value list are left open.
func (g *Graph) Constraints(id int) []cq.Constraint {
	v, ok := g.vertices[id]
	if !ok || len(g.adj[id]) == 0 {
		return nil
	}
	unions := make([]schema.Intersect, len(v.types))
	for pos, typ := range v.types {
		unions[pos] = schema.Empty(typ)
	}
	for _, n := range g.Neighbors(id) {
		for pos, in := range g.adj[id][n] {
			unions[pos] = unions[pos].Union(in)
		}
	}

	var cons []cq.Constraint
	for pos, in := range unions {
		if v.types[pos] == schema.TypeAggr || in.IsAll() || in.IsEmpty() {
			continue
		}
		cons = append(cons, cq.Constraint{Pos: pos, Intersect: in})
	}
	return cons
}

// Dot renders the graph in Graphviz format.
func (g *Graph) Dot() string {
	out := dot.NewGraph(dot.Undirected)
	ids := g.IDs().Sorted()

	nodes := make(map[int]dot.Node, len(ids))
	for _, id := range ids {
		v := g.vertices[id]
		label := strconv.Itoa(id)
		if v.label != "" {
			label = v.label
		}
		nodes[id] = out.Node(strconv.Itoa(id)).Attr("label", label+" "+v.signature)
	}
	for _, a := range ids {
		for _, b := range g.Neighbors(a) {
			if b <= a {
				continue
			}
			out.Edge(nodes[a], nodes[b])
		}
	}
	return out.String()
}
