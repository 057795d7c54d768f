// Package aig holds the attribute intersection graph: which attributes of a
// database can share values, and which values.
package aig

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/umich-dbgroup/litmus/pkg/clique"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Graph is immutable once built and safe for concurrent readers.
type Graph struct {
	database string
	attrs    map[schema.AttrKey]*schema.Attribute
	adj      map[schema.AttrKey]map[schema.AttrKey]schema.Intersect
	edges    int
}

func New(database string) *Graph {
	return &Graph{
		database: database,
		attrs:    make(map[schema.AttrKey]*schema.Attribute),
		adj:      make(map[schema.AttrKey]map[schema.AttrKey]schema.Intersect),
	}
}

func (g *Graph) Database() string { return g.database }

// EdgeCount is the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.edges }

// AddVertex registers an attribute without edges.
func (g *Graph) AddVertex(a *schema.Attribute) {
	if _, ok := g.attrs[a.Key()]; !ok {
		g.attrs[a.Key()] = a
	}
}

// Attribute returns a registered attribute.
func (g *Graph) Attribute(k schema.AttrKey) (*schema.Attribute, bool) {
	a, ok := g.attrs[k]
	return a, ok
}

// AddEdge connects two distinct attributes. Empty intersects are ignored.
func (g *Graph) AddEdge(a, b *schema.Attribute, in schema.Intersect) {
	if in.IsEmpty() || a.Key() == b.Key() {
		return
	}
	g.AddVertex(a)
	g.AddVertex(b)
	if _, exists := g.adj[a.Key()][b.Key()]; !exists {
		g.edges++
	}
	g.link(a.Key(), b.Key(), in)
	g.link(b.Key(), a.Key(), in)
}

func (g *Graph) link(from, to schema.AttrKey, in schema.Intersect) {
	m, ok := g.adj[from]
	if !ok {
		m = make(map[schema.AttrKey]schema.Intersect)
		g.adj[from] = m
	}
	m[to] = in
}

// Edge returns the intersect between a and b.
func (g *Graph) Edge(a, b schema.AttrKey) (schema.Intersect, bool) {
	in, ok := g.adj[a][b]
	return in, ok
}

// Neighbors returns the attributes sharing values with k, sorted.
func (g *Graph) Neighbors(k schema.AttrKey) []schema.AttrKey {
	out := make([]schema.AttrKey, 0, len(g.adj[k]))
	for n := range g.adj[k] {
		out = append(out, n)
	}
	slices.SortFunc(out, compareKeys)
	return out
}

// Compatible reports whether a and b can hold a common value: either they
// are the same attribute or the graph has an edge between them.
func (g *Graph) Compatible(a, b schema.AttrKey) bool {
	if a == b {
		return true
	}
	_, ok := g.adj[a][b]
	return ok
}

// FindMaximalCliques enumerates the maximal groups of pairwise intersecting
// attributes among attrs.
func (g *Graph) FindMaximalCliques(attrs []*schema.Attribute) [][]*schema.Attribute {
	byName := make(map[string]*schema.Attribute, len(attrs))
	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		name := a.String()
		if _, dup := byName[name]; dup {
			continue
		}
		byName[name] = a
		names = append(names, name)
	}

	cliques := clique.Maximal(names, func(x, y string) bool {
		return g.Compatible(byName[x].Key(), byName[y].Key())
	})

	out := make([][]*schema.Attribute, 0, len(cliques))
	for _, c := range cliques {
		if len(c) == 0 {
			continue
		}
		members := make([]*schema.Attribute, len(c))
		for i, name := range c {
			members[i] = byName[name]
		}
		out = append(out, members)
	}
	return out
}

// CliqueIntersect is the meet of all pairwise intersects of a clique. A
// single attribute yields its own range.
func (g *Graph) CliqueIntersect(members []*schema.Attribute) schema.Intersect {
	if len(members) == 0 {
		return schema.Empty(schema.TypeOther)
	}
	result := members[0].Range()
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			in, ok := g.Edge(members[i].Key(), members[j].Key())
			if !ok {
				return schema.Empty(members[0].Type)
			}
			result = result.Meet(in)
		}
	}
	return result
}

func compareKeys(a, b schema.AttrKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

type snapshot struct {
	Database   string              `json:"database"`
	Attributes []*schema.Attribute `json:"attributes"`
	Edges      []snapshotEdge      `json:"edges"`
}

type snapshotEdge struct {
	A         schema.AttrKey   `json:"a"`
	B         schema.AttrKey   `json:"b"`
	Intersect schema.Intersect `json:"intersect"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	s := snapshot{Database: g.database}
	for _, a := range g.attrs {
		s.Attributes = append(s.Attributes, a)
	}
	slices.SortFunc(s.Attributes, func(x, y *schema.Attribute) int { return compareKeys(x.Key(), y.Key()) })

	for a, m := range g.adj {
		for b, in := range m {
			if a.Less(b) {
				s.Edges = append(s.Edges, snapshotEdge{A: a, B: b, Intersect: in})
			}
		}
	}
	slices.SortFunc(s.Edges, func(x, y snapshotEdge) int {
		if c := compareKeys(x.A, y.A); c != 0 {
			return c
		}
		return compareKeys(x.B, y.B)
	})
	return json.Marshal(s)
}

func (g *Graph) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*g = *New(s.Database)
	for _, a := range s.Attributes {
		g.AddVertex(a)
	}
	for _, e := range s.Edges {
		a, okA := g.attrs[e.A]
		b, okB := g.attrs[e.B]
		if !okA || !okB {
			return fmt.Errorf("edge %s-%s references an unknown attribute", e.A, e.B)
		}
		g.AddEdge(a, b, e.Intersect)
	}
	return nil
}
