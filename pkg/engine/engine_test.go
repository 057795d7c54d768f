package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/db/sqlite/sqlitetest"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// scriptedDB overrides costs and forces timeouts for chosen statements.
type scriptedDB struct {
	db.Database
	timeouts map[string]bool
	costs    map[string]float64
	queries  []string
}

func (s *scriptedDB) Query(ctx context.Context, sql string, args ...any) ([]cq.Tuple, error) {
	s.queries = append(s.queries, sql)
	if s.timeouts[sql] {
		return nil, fmt.Errorf("%w: scripted", db.ErrTimeout)
	}
	return s.Database.Query(ctx, sql, args...)
}

func (s *scriptedDB) Explain(ctx context.Context, sql string) (float64, error) {
	if c, ok := s.costs[sql]; ok {
		return c, nil
	}
	return s.Database.Explain(ctx, sql)
}

func newScripted(t *testing.T) *scriptedDB {
	return &scriptedDB{
		Database: sqlitetest.Open(t),
		timeouts: map[string]bool{},
		costs:    map[string]float64{},
	}
}

func query(id int, weight float64, expr string, typ schema.AttrType, from, where string) *cq.CQ {
	text := fmt.Sprintf("SELECT %s FROM %s", expr, from)
	if where != "" {
		text += " WHERE " + where
	}
	return &cq.CQ{
		ID:          id,
		Text:        text,
		Weight:      weight,
		Projections: []cq.Projection{{Expr: expr, Type: typ}},
		From:        from,
		Where:       where,
	}
}

func keysOf(m *cq.TupleMap) map[string]cq.IDSet {
	out := make(map[string]cq.IDSet)
	for _, k := range m.Keys() {
		t, _ := m.Tuple(k)
		out[t.String()] = m.Support(k)
	}
	return out
}

func TestRunCollectsSupportAndExcludesNull(t *testing.T) {
	d := newScripted(t)
	e := NewExecutor(NewExecutorParams{DB: d})

	cqs := cq.NewSet(
		query(0, 1, "a.name", schema.TypeText, "actor a", ""),
		query(1, 1, "d.name", schema.TypeText, "director d", ""),
	)
	res, err := e.Run(context.Background(), Request{Candidates: cqs})
	require.NoError(t, err)

	assert.True(t, res.Valid.Equal(cq.NewIDSet(0, 1)))
	assert.Equal(t, 0, res.TimedOut.Len())
	assert.Equal(t, 5, res.Tuples.Len())

	clint := cq.Tuple{"Clint Eastwood"}.Key()
	assert.True(t, res.Tuples.Support(clint).Equal(cq.NewIDSet(0, 1)))
	for _, k := range res.Tuples.Keys() {
		tup, _ := res.Tuples.Tuple(k)
		assert.NotContains(t, tup, nil)
	}
	assert.Equal(t, cq.Cached, res.States.Get(0).Status)
}

func TestRunAbandonsAfterFirstTimeout(t *testing.T) {
	d := newScripted(t)
	e := NewExecutor(NewExecutorParams{DB: d})

	cheap := query(0, 1, "m.title", schema.TypeText, "movie m", "m.year > 2000")
	slow := query(1, 1, "m.title", schema.TypeText, "movie m", "m.year < 1993")
	slower := query(2, 1, "m.title", schema.TypeText, "movie m", "m.rating > 8")
	d.costs[cheap.Text] = 1
	d.costs[slow.Text] = 2
	d.costs[slower.Text] = 3
	d.timeouts[slow.Text] = true

	res, err := e.Run(context.Background(), Request{Candidates: cq.NewSet(cheap, slow, slower)})
	require.NoError(t, err)

	assert.Equal(t, []string{cheap.Text, slow.Text}, d.queries)
	assert.True(t, res.TimedOut.Equal(cq.NewIDSet(1, 2)))
	assert.True(t, res.Valid.Equal(cq.NewIDSet(0)))
	assert.Equal(t, cq.TimedOut, res.States.Get(2).Status)
	assert.Contains(t, keysOf(res.Tuples), cq.Tuple{"Gran Torino"}.String())
}

func TestRunIncrementalSkipsRowsInEveryCandidate(t *testing.T) {
	d := newScripted(t)
	e := NewExecutor(NewExecutorParams{DB: d})

	high := query(0, 2, "m.title", schema.TypeText, "movie m", "m.year < 2000")
	low := query(1, 1, "m.title", schema.TypeText, "movie m", "m.year = 1993")
	d.timeouts[high.Text] = true
	d.timeouts[low.Text] = true
	d.costs[high.Text] = 1
	d.costs[low.Text] = 2

	res, err := e.Run(context.Background(), Request{Candidates: cq.NewSet(high, low)})
	require.NoError(t, err)

	// Offset 0 is Sleepless in Seattle, which both candidates return.
	require.Equal(t, 1, res.Tuples.Len())
	gump := cq.Tuple{"Forrest Gump"}.Key()
	assert.True(t, res.Tuples.Support(gump).Equal(cq.NewIDSet(0)))
	assert.Equal(t, 2, res.States.Get(0).Offset)
	assert.Equal(t, cq.TimedOut, res.States.Get(0).Status)
}

func TestRunKeepsConstraintContextsApart(t *testing.T) {
	d := newScripted(t)
	cache := NewMemoryCache()
	e := NewExecutor(NewExecutorParams{DB: d, Cache: cache})
	ctx := context.Background()

	years := query(0, 1, "m.year", schema.TypeNum, "movie m", "")
	cqs := cq.NewSet(years)
	narrow := func(int) []cq.Constraint {
		return []cq.Constraint{{Pos: 0, Intersect: schema.Num(1990, 1993)}}
	}

	open, err := e.Run(ctx, Request{Candidates: cqs})
	require.NoError(t, err)
	assert.Equal(t, 4, open.Tuples.Len())

	narrowed, err := e.Run(ctx, Request{Candidates: cqs, States: open.States, Constraints: narrow})
	require.NoError(t, err)
	assert.Equal(t, 2, narrowed.Tuples.Len())
	assert.Equal(t, 0, narrowed.Cached.Len())

	again, err := e.Run(ctx, Request{Candidates: cqs, States: narrowed.States})
	require.NoError(t, err)
	assert.Equal(t, 4, again.Tuples.Len())
	assert.True(t, again.Cached.Has(0))
	assert.Equal(t, 2, cache.Len())
}

func TestRunRecordsFailedCQs(t *testing.T) {
	d := newScripted(t)
	trace := NewExecutionTrace()
	e := NewExecutor(NewExecutorParams{DB: d, Tracer: MultiTracer{trace, LogTracer{}}})

	broken := query(0, 1, "m.nope", schema.TypeText, "movie m", "")
	ok := query(1, 1, "m.title", schema.TypeText, "movie m", "")

	res, err := e.Run(context.Background(), Request{Candidates: cq.NewSet(broken, ok)})
	require.NoError(t, err)
	assert.True(t, res.Errors.Equal(cq.NewIDSet(0)))
	assert.Equal(t, cq.Failed, res.States.Get(0).Status)
	assert.Equal(t, 1, trace.Snapshot().Counts[TraceEventFailed])

	again, err := e.Run(context.Background(), Request{Candidates: cq.NewSet(broken, ok), States: res.States})
	require.NoError(t, err)
	assert.True(t, again.Errors.Has(0))
	assert.True(t, again.Cached.Has(1))
}

func TestTupleInQuery(t *testing.T) {
	d := newScripted(t)
	e := NewExecutor(NewExecutorParams{DB: d})
	ctx := context.Background()
	q := query(0, 1, "m.title", schema.TypeText, "movie m", "m.year > 2000")

	in, err := e.TupleInQuery(ctx, cq.Tuple{"Gran Torino"}, q, cq.State{})
	require.NoError(t, err)
	assert.True(t, in)

	in, err = e.TupleInQuery(ctx, cq.Tuple{"Unforgiven"}, q, cq.State{})
	require.NoError(t, err)
	assert.False(t, in)

	in, err = e.TupleInQuery(ctx, cq.Tuple{int64(3)}, q, cq.State{})
	require.NoError(t, err)
	assert.False(t, in, "type mismatch never matches")

	_, err = e.TupleInQuery(ctx, cq.Tuple{"a", "b"}, q, cq.State{})
	assert.ErrorIs(t, err, cq.ErrShape)

	cached := cq.NewCached("", []cq.Tuple{{"Jaws"}})
	in, err = e.TupleInQuery(ctx, cq.Tuple{"Jaws"}, q, cached)
	require.NoError(t, err)
	assert.True(t, in, "complete cached results answer in memory")
}

func TestTupleInQueryAggregate(t *testing.T) {
	d := newScripted(t)
	e := NewExecutor(NewExecutorParams{DB: d})

	count := &cq.CQ{
		ID:          0,
		Text:        "SELECT COUNT(*) FROM movie m",
		Projections: []cq.Projection{{Expr: "COUNT(*)", Type: schema.TypeAggr}},
		From:        "movie m",
	}
	in, err := e.TupleInQuery(context.Background(), cq.Tuple{int64(5)}, count, cq.State{})
	require.NoError(t, err)
	assert.True(t, in)
}
