package aig

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/umich-dbgroup/litmus/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func num(rel, name string, lo, hi float64) *schema.Attribute {
	return &schema.Attribute{Relation: rel, Name: name, Type: schema.TypeNum, Min: f(lo), Max: f(hi)}
}

func text(rel, name string) *schema.Attribute {
	return &schema.Attribute{Relation: rel, Name: name, Type: schema.TypeText}
}

type fakeIntersector struct {
	values map[string][]string
	err    error
}

func (fi *fakeIntersector) DistinctIntersect(_ context.Context, a, b *schema.Attribute) ([]string, error) {
	if fi.err != nil {
		return nil, fi.err
	}
	names := []string{a.String(), b.String()}
	sort.Strings(names)
	return fi.values[names[0]+"|"+names[1]], nil
}

func testSchema(attrs ...*schema.Attribute) *schema.Schema {
	s := &schema.Schema{Database: "test", Relations: map[string]*schema.Relation{}}
	for _, a := range attrs {
		rel, ok := s.Relations[a.Relation]
		if !ok {
			rel = &schema.Relation{Name: a.Relation, Attributes: map[string]*schema.Attribute{}}
			s.Relations[a.Relation] = rel
		}
		rel.Attributes[a.Name] = a
	}
	return s
}

func TestBuild(t *testing.T) {
	year := num("movie", "year", 1900, 2020)
	born := num("actor", "born", 1850, 1950)
	rating := num("movie", "rating", 0, 10)
	title := text("movie", "title")
	name := text("actor", "name")
	genre := text("genre", "label")

	in := &fakeIntersector{values: map[string][]string{
		"actor.name|movie.title": {"Heat"},
	}}
	g, err := Build(context.Background(), BuildParams{
		Schema:      testSchema(year, born, rating, title, name, genre),
		Intersector: in,
		Parallelism: 2,
	})
	require.NoError(t, err)

	edge, ok := g.Edge(year.Key(), born.Key())
	require.True(t, ok)
	assert.True(t, schema.Num(1900, 1950).Equal(edge))

	_, ok = g.Edge(year.Key(), rating.Key())
	assert.False(t, ok, "disjoint ranges must not produce an edge")

	edge, ok = g.Edge(name.Key(), title.Key())
	require.True(t, ok)
	assert.Equal(t, []string{"Heat"}, edge.Values())

	_, ok = g.Edge(name.Key(), genre.Key())
	assert.False(t, ok)
	_, ok = g.Edge(year.Key(), title.Key())
	assert.False(t, ok, "different types never intersect")

	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []schema.AttrKey{born.Key()}, g.Neighbors(year.Key()))
}

func TestBuild_PropagatesIntersectorError(t *testing.T) {
	_, err := Build(context.Background(), BuildParams{
		Schema:      testSchema(text("a", "x"), text("b", "y")),
		Intersector: &fakeIntersector{err: errors.New("boom")},
	})
	require.Error(t, err)
}

func TestNumIntersect(t *testing.T) {
	a := num("r", "a", 10, 20)
	b := num("r", "b", 15, 30)
	assert.True(t, schema.Num(15, 20).Equal(NumIntersect(a, b)))

	empty := &schema.Attribute{Relation: "r", Name: "c", Type: schema.TypeNum}
	assert.True(t, NumIntersect(a, empty).IsEmpty())
}

func TestFindMaximalCliques(t *testing.T) {
	a := num("r", "a", 0, 10)
	b := num("r", "b", 5, 15)
	c := num("r", "c", 8, 20)
	d := num("r", "d", 12, 30)

	g := New("test")
	for _, x := range []*schema.Attribute{a, b, c, d} {
		for _, y := range []*schema.Attribute{a, b, c, d} {
			if x.String() < y.String() {
				g.AddEdge(x, y, NumIntersect(x, y))
			}
		}
	}

	cliques := g.FindMaximalCliques([]*schema.Attribute{a, b, c, d})
	require.Len(t, cliques, 2)
	assert.Equal(t, []string{"r.a", "r.b", "r.c"}, names(cliques[0]))
	assert.Equal(t, []string{"r.b", "r.c", "r.d"}, names(cliques[1]))

	assert.True(t, schema.Num(8, 10).Equal(g.CliqueIntersect(cliques[0])))
	assert.True(t, schema.Num(12, 15).Equal(g.CliqueIntersect(cliques[1])))
	assert.True(t, schema.Num(0, 10).Equal(g.CliqueIntersect([]*schema.Attribute{a})))

	assert.True(t, g.Compatible(a.Key(), a.Key()))
	assert.True(t, g.Compatible(a.Key(), c.Key()))
	assert.False(t, g.Compatible(a.Key(), d.Key()))
}

func names(attrs []*schema.Attribute) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.String()
	}
	return out
}

func TestGraphJSON(t *testing.T) {
	a := num("r", "a", 0, 10)
	b := num("r", "b", 5, 15)
	lonely := text("r", "t")
	g := New("test")
	g.AddVertex(lonely)
	g.AddEdge(a, b, NumIntersect(a, b))

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var out Graph
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "test", out.Database())
	assert.Equal(t, 1, out.EdgeCount())
	edge, ok := out.Edge(b.Key(), a.Key())
	require.True(t, ok)
	assert.True(t, schema.Num(5, 10).Equal(edge))
	_, ok = out.Attribute(lonely.Key())
	assert.True(t, ok)
}
