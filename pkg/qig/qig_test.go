package qig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

func f(v float64) *float64 { return &v }

var (
	movieYear  = &schema.Attribute{Relation: "movie", Name: "year", Type: schema.TypeNum, Min: f(10), Max: f(20)}
	awardYear  = &schema.Attribute{Relation: "award", Name: "year", Type: schema.TypeNum, Min: f(15), Max: f(30)}
	actorBirth = &schema.Attribute{Relation: "actor", Name: "birth", Type: schema.TypeNum, Min: f(100), Max: f(200)}
	movieTitle = &schema.Attribute{Relation: "movie", Name: "title", Type: schema.TypeText}
	actorName  = &schema.Attribute{Relation: "actor", Name: "name", Type: schema.TypeText}
)

func testAIG() *aig.Graph {
	g := aig.New("test")
	for _, a := range []*schema.Attribute{movieYear, awardYear, actorBirth, movieTitle, actorName} {
		g.AddVertex(a)
	}
	g.AddEdge(movieYear, awardYear, aig.NumIntersect(movieYear, awardYear))
	g.AddEdge(movieTitle, actorName, schema.Text("Ray"))
	return g
}

func project(id int, attrs ...*schema.Attribute) *cq.CQ {
	q := &cq.CQ{ID: id, Weight: 1}
	for _, a := range attrs {
		q.Projections = append(q.Projections, cq.Projection{Expr: a.String(), Type: a.Type, Attr: a})
	}
	return q
}

func aggregate(id int) *cq.CQ {
	return &cq.CQ{ID: id, Weight: 1, Projections: []cq.Projection{{Expr: "COUNT(*)", Type: schema.TypeAggr}}}
}

func TestRangeEdgeCarriesAttributeIntersect(t *testing.T) {
	g, err := Build(ModeRange, cq.NewSet(project(0, movieYear), project(1, awardYear)), testAIG())
	require.NoError(t, err)

	meta, ok := g.Edge(0, 1)
	require.True(t, ok)
	require.Len(t, meta, 1)
	assert.True(t, meta[0].Equal(schema.Num(15, 20)), "got %s", meta[0])
}

func TestRangeRequiresEveryPosition(t *testing.T) {
	cqs := cq.NewSet(
		project(0, movieTitle, movieYear),
		project(1, actorName, awardYear),
		project(2, actorName, actorBirth),
	)
	g, err := Build(ModeRange, cqs, testAIG())
	require.NoError(t, err)

	assert.True(t, g.HasEdge(0, 1))
	assert.False(t, g.HasEdge(0, 2), "year and birth never intersect")
	assert.False(t, g.HasEdge(1, 2))
	assert.Equal(t, [][]int{{0, 1}, {2}}, g.MaximalCliques())
}

func TestSameAttributeIsConnected(t *testing.T) {
	g, err := Build(ModeRange, cq.NewSet(project(0, movieTitle), project(1, movieTitle), project(2, actorBirth), project(3, actorBirth)), testAIG())
	require.NoError(t, err)

	meta, ok := g.Edge(0, 1)
	require.True(t, ok)
	assert.True(t, meta[0].IsAll())

	meta, ok = g.Edge(2, 3)
	require.True(t, ok)
	assert.True(t, meta[0].Equal(schema.Num(100, 200)))
}

func TestTypeModeGroupsBySignature(t *testing.T) {
	cqs := cq.NewSet(project(0, movieYear), project(1, actorBirth), project(2, movieTitle), aggregate(3), aggregate(4))
	g, err := Build(ModeType, cqs, nil)
	require.NoError(t, err)

	assert.True(t, g.HasEdge(0, 1))
	assert.False(t, g.HasEdge(0, 2))
	assert.True(t, g.HasEdge(3, 4))
	assert.ElementsMatch(t, [][]int{{0, 1}, {2}, {3, 4}}, g.MaximalCliques())
}

func TestRangeModeNeedsAIG(t *testing.T) {
	_, err := Build(ModeRange, cq.NewSet(project(0, movieYear)), nil)
	assert.Error(t, err)
}

func TestCliquesNeverJoinDisjointAttributes(t *testing.T) {
	cqs := cq.NewSet(project(0, movieYear), project(1, awardYear), project(2, actorBirth), project(3, movieYear))
	g, err := Build(ModeRange, cqs, testAIG())
	require.NoError(t, err)

	for _, c := range g.MaximalCliques() {
		set := cq.NewIDSet(c...)
		assert.False(t, set.Has(0) && set.Has(2))
		assert.False(t, set.Has(1) && set.Has(2))
	}
}

func TestPartitionCompleteness(t *testing.T) {
	cqs := cq.NewSet(
		project(0, movieYear), project(1, awardYear), project(2, actorBirth),
		project(3, movieTitle), project(4, actorName), aggregate(5),
	)
	g, err := Build(ModeRange, cqs, testAIG())
	require.NoError(t, err)

	ps := g.PartitionSet()
	assert.True(t, ps.Covered().Equal(cqs.IDs()))

	p, ok := ps.Get("(num)/0")
	require.True(t, ok)
	assert.True(t, p.IDs.Equal(cq.NewIDSet(0, 1)))
	assert.True(t, p.Intersects[0].Equal(schema.Num(15, 20)))

	p, ok = ps.Get("(num)/1")
	require.True(t, ok)
	assert.True(t, p.Intersects[0].Equal(schema.Num(100, 200)))
}

func TestUpdateRemovesVertices(t *testing.T) {
	cqs := cq.NewSet(project(0, movieYear), project(1, awardYear), project(2, movieYear))
	g, err := Build(ModeRange, cqs, testAIG())
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 1, 2}}, g.MaximalCliques())

	g.Update(cq.NewIDSet(0, 1))
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []int{1}, g.Neighbors(0))
	assert.False(t, g.HasEdge(0, 2))
	assert.Equal(t, [][]int{{0, 1}}, g.MaximalCliques())
}

func TestConstraints(t *testing.T) {
	cqs := cq.NewSet(project(0, movieYear, movieTitle), project(1, awardYear, actorName), project(2, actorBirth, movieTitle))
	g, err := Build(ModeRange, cqs, testAIG())
	require.NoError(t, err)

	cons := g.Constraints(0)
	require.Len(t, cons, 2)
	assert.Equal(t, 0, cons[0].Pos)
	assert.True(t, cons[0].Intersect.Equal(schema.Num(15, 20)))
	assert.True(t, cons[1].Intersect.Equal(schema.Text("Ray")))

	assert.Empty(t, g.Constraints(2), "no neighbours, no narrowing")
}

func TestDot(t *testing.T) {
	g, err := Build(ModeRange, cq.NewSet(project(0, movieYear), project(1, awardYear)), testAIG())
	require.NoError(t, err)

	out := g.Dot()
	assert.True(t, strings.HasPrefix(out, "graph"))
	assert.Contains(t, out, "--")
}

func TestPartitionByRange(t *testing.T) {
	cqs := cq.NewSet(
		project(0, movieTitle, movieYear),
		project(1, actorName, awardYear),
		project(2, actorName, actorBirth),
		aggregate(3),
		aggregate(4),
	)
	ps, err := PartitionByRange(cqs, testAIG())
	require.NoError(t, err)

	require.Equal(t, 3, ps.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ps.Covered().Sorted())

	years, ok := ps.Get("(text,num)/1")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, years.IDs.Sorted())
	assert.True(t, years.Intersects[1].Equal(schema.Num(15, 20)), "got %s", years.Intersects[1])

	births, ok := ps.Get("(text,num)/0")
	require.True(t, ok)
	assert.Equal(t, []int{2}, births.IDs.Sorted())
	assert.True(t, births.Intersects[1].Equal(schema.Num(100, 200)))

	counts, ok := ps.Get("(aggr)/0")
	require.True(t, ok)
	assert.Equal(t, []int{3, 4}, counts.IDs.Sorted())
	assert.True(t, counts.Intersects[0].IsAll())
}

func TestPartitionByRangeNeedsAIG(t *testing.T) {
	_, err := PartitionByRange(cq.NewSet(project(0, movieYear)), nil)
	assert.Error(t, err)
}

func TestPositionModePartitions(t *testing.T) {
	cqs := cq.NewSet(
		project(0, movieTitle, movieYear),
		project(1, actorName, awardYear),
		project(2, actorName, actorBirth),
		aggregate(3),
		aggregate(4),
	)
	g, err := Build(ModePosition, cqs, testAIG())
	require.NoError(t, err)

	_, ok := g.Edge(0, 1)
	assert.True(t, ok)
	_, ok = g.Edge(1, 2)
	assert.False(t, ok)

	ps := g.PartitionSet()
	require.Equal(t, 3, ps.Len())
	years, ok := ps.Get("(text,num)/1")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, years.IDs.Sorted())

	g.Update(cq.NewIDSet(0, 2, 3, 4))
	ps = g.PartitionSet()
	assert.Equal(t, []int{0, 2, 3, 4}, ps.Covered().Sorted())
	for _, p := range ps.Parts {
		assert.False(t, p.IDs.Has(1), "part %s still holds 1", p.Key)
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"type", "range", "position"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("clique")
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = Build(ModePosition, cq.NewSet(project(0, movieYear)), nil)
	assert.Error(t, err)
}
