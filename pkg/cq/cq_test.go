package cq

import (
	"fmt"
	"strings"
	"testing"

	"github.com/umich-dbgroup/litmus/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDialect struct{}

func (testDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (testDialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func movieCQ() *CQ {
	return &CQ{
		ID:   1,
		Text: "SELECT m.title, m.year FROM movie AS m WHERE m.year > 1990",
		Projections: []Projection{
			{Expr: "m.title", Type: schema.TypeText},
			{Expr: "m.year", Type: schema.TypeNum},
		},
		From:   "movie AS m",
		Where:  "m.year > 1990",
		Weight: 1,
	}
}

func TestIDSet(t *testing.T) {
	a := NewIDSet(3, 1, 2)
	b := NewIDSet(2, 3)

	assert.Equal(t, "1,2,3", a.Key())
	assert.True(t, b.SubsetOf(a))
	assert.True(t, b.ProperSubsetOf(a))
	assert.False(t, a.ProperSubsetOf(a))
	assert.True(t, a.Equal(NewIDSet(1, 2, 3)))
	assert.Equal(t, []int{1}, a.Minus(b).Sorted())
	assert.Equal(t, []int{2, 3}, a.Intersect(b).Sorted())
	assert.Equal(t, []int{1, 2, 3, 4}, b.Union(NewIDSet(1, 4)).Sorted())
	assert.Equal(t, []int{1, 3}, a.Without(2).Sorted())
	assert.Equal(t, []int{1, 2, 3}, a.Sorted(), "Without must not modify the receiver")
}

func TestTupleKey(t *testing.T) {
	assert.Equal(t, Tuple{int64(15)}.Key(), Tuple{15.0}.Key())
	assert.NotEqual(t, Tuple{"15"}.Key(), Tuple{int64(15)}.Key())
	assert.NotEqual(t, Tuple{"a;b"}.Key(), Tuple{"a", "b"}.Key())
	assert.Equal(t, Tuple{"x", 1.5}.Key(), Tuple{"x", 1.5}.Key())
}

func TestTupleMap(t *testing.T) {
	m := NewTupleMap()
	m.Add(Tuple{"b"}, 2)
	m.Add(Tuple{"a"}, 1)
	m.Add(Tuple{"b"}, 1)

	keys := m.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, Tuple{"b"}.Key(), keys[0], "discovery order is kept")
	assert.Equal(t, []int{1, 2}, m.Support(keys[0]).Sorted())

	filtered := m.Filter(func(_ TupleKey, s IDSet) bool { return s.Len() == 1 })
	assert.Equal(t, 1, filtered.Len())

	m.Delete(keys[0])
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []TupleKey{Tuple{"a"}.Key()}, m.Keys())
}

func TestStates(t *testing.T) {
	s := States{
		1: NewCached("", []Tuple{{"a"}, {"b"}}),
		2: NewTimedOut("", 0),
	}
	assert.Equal(t, Unexecuted, s.Get(3).Status)
	assert.True(t, s.Get(1).CachedFor(""))
	assert.False(t, s.Get(1).CachedFor("ctx"))

	scrubbed := s.Scrub(Tuple{"a"}.Key())
	assert.Len(t, scrubbed.Get(1).Tuples, 1)
	assert.Len(t, s.Get(1).Tuples, 2, "scrubbing returns new states")

	assert.Equal(t, 1, s.Get(2).Advance().Offset)
	assert.Len(t, s.Retain(NewIDSet(2)), 1)
}

func TestAccepts(t *testing.T) {
	q := movieCQ()
	assert.True(t, q.Accepts(Tuple{"Heat", int64(1995)}))
	assert.False(t, q.Accepts(Tuple{"Heat"}))
	assert.False(t, q.Accepts(Tuple{int64(1), int64(1995)}))

	lo, hi := 1900.0, 2020.0
	q.Projections[1].Attr = &schema.Attribute{Relation: "movie", Name: "year", Type: schema.TypeNum, Min: &lo, Max: &hi}
	assert.True(t, q.Accepts(Tuple{"Heat", 1995.0}))
	assert.False(t, q.Accepts(Tuple{"Heat", int64(2077)}), "outside the column range")

	q.Projections[1].Attr.Min = nil
	assert.True(t, q.Accepts(Tuple{"Heat", int64(2077)}), "unknown range")
}

func TestSQL_Unconstrained(t *testing.T) {
	q := movieCQ()
	assert.Equal(t, q.Text, q.SQL(nil, testDialect{}))
}

func TestSQL_Constrained(t *testing.T) {
	q := movieCQ()
	cons := []Constraint{
		{Pos: 0, Intersect: schema.Text("Heat", "O'Brien")},
		{Pos: 1, Intersect: schema.Num(1995, 2000)},
	}
	got := q.SQL(cons, testDialect{})
	assert.Equal(t,
		"SELECT m.title, m.year FROM movie AS m WHERE (m.year > 1990) AND (m.title IN ('Heat', 'O''Brien')) AND (m.year >= 1995 AND m.year <= 2000)",
		got)
}

func TestContextKey(t *testing.T) {
	a := []Constraint{{Pos: 1, Intersect: schema.Num(1, 2)}}
	b := []Constraint{{Pos: 1, Intersect: schema.Num(1, 3)}}
	assert.Equal(t, "", ContextKey(nil))
	assert.NotEqual(t, ContextKey(a), ContextKey(b))
	assert.Equal(t, ContextKey(a), ContextKey([]Constraint{{Pos: 1, Intersect: schema.Num(1, 2)}}))
}

func TestProbeSQL(t *testing.T) {
	q := movieCQ()
	sql, args, err := q.ProbeSQL(Tuple{"Heat", int64(1995)}, testDialect{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM movie AS m WHERE (m.year > 1990) AND m.title = $1 AND m.year = $2 LIMIT 1", sql)
	assert.Equal(t, []any{"Heat", int64(1995)}, args)

	_, _, err = q.ProbeSQL(Tuple{"Heat"}, testDialect{})
	assert.ErrorIs(t, err, ErrShape)
}

func TestRowAtSQL(t *testing.T) {
	q := movieCQ()
	q.Where = ""
	q.Distinct = true
	assert.Equal(t, "SELECT DISTINCT m.title, m.year FROM movie AS m LIMIT 1 OFFSET 7", q.RowAtSQL(nil, testDialect{}, 7))
}

func TestSetWeight(t *testing.T) {
	s := NewSet(&CQ{ID: 1, Weight: 3}, &CQ{ID: 2, Weight: 2}, &CQ{ID: 3, Weight: 1})
	assert.Equal(t, 6.0, s.TotalWeight())
	assert.Equal(t, 4.0, s.Weight(NewIDSet(1, 3, 9)))
	assert.Len(t, s.Subset(NewIDSet(2, 9)), 1)
}
