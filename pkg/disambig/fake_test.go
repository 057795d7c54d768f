package disambig

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/engine"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// memDB answers queries of the form "SELECT v FROM r<id>" from fixed rows.
// Full queries against slow tables time out; single row fetches still work.
type memDB struct {
	rows    map[string][]cq.Tuple
	slow    map[string]bool
	queries int
}

func (m *memDB) table(sql string) string {
	_, rest, _ := strings.Cut(sql, " FROM ")
	name, _, _ := strings.Cut(rest, " ")
	return name
}

func (m *memDB) Name() string                { return "mem" }
func (m *memDB) Placeholder(int) string      { return "?" }
func (m *memDB) QuoteString(s string) string { return "'" + s + "'" }

func (m *memDB) Query(_ context.Context, sql string, _ ...any) ([]cq.Tuple, error) {
	m.queries++
	table := m.table(sql)
	rows, ok := m.rows[table]
	if !ok {
		return nil, fmt.Errorf("no such table in %q", sql)
	}
	if m.slow[table] {
		return nil, fmt.Errorf("%s: %w", table, db.ErrTimeout)
	}
	return slices.Clone(rows), nil
}

func (m *memDB) QueryRow(_ context.Context, sql string, _ ...any) (cq.Tuple, bool, error) {
	_, off, ok := strings.Cut(sql, " OFFSET ")
	if !ok {
		return nil, false, fmt.Errorf("no offset in %q", sql)
	}
	n, err := strconv.Atoi(strings.TrimSpace(off))
	if err != nil {
		return nil, false, err
	}
	rows := m.rows[m.table(sql)]
	if n >= len(rows) {
		return nil, false, nil
	}
	return slices.Clone(rows[n]), true, nil
}

func (m *memDB) Exists(_ context.Context, sql string, args ...any) (bool, error) {
	k := cq.Tuple(args).Key()
	return slices.ContainsFunc(m.rows[m.table(sql)], func(t cq.Tuple) bool { return t.Key() == k }), nil
}

func (m *memDB) Explain(context.Context, string) (float64, error) { return 1, nil }

func (m *memDB) DistinctIntersect(context.Context, *schema.Attribute, *schema.Attribute) ([]string, error) {
	return nil, nil
}

func (m *memDB) ListTables(context.Context) ([]string, error) { return nil, nil }

func (m *memDB) DescribeColumns(context.Context, string) ([]schema.Column, error) {
	return nil, nil
}

func (m *memDB) MinMax(context.Context, string, string) (*float64, *float64, error) {
	return nil, nil, nil
}

func (m *memDB) Close() error { return nil }

// fixture is a candidate set over memDB. Each query projects one numeric
// attribute; attributes of the same group intersect, groups never do.
type fixture struct {
	db    *memDB
	cqs   cq.Set
	graph *aig.Graph
}

func span(lo, hi float64) (*float64, *float64) { return &lo, &hi }

// newFixture builds one query per rows entry. groups[i] picks the value
// range of query i: group g covers [100g, 100g+99].
func newFixture(weights []float64, groups []int, rows [][]int64) *fixture {
	f := &fixture{db: &memDB{rows: map[string][]cq.Tuple{}}, cqs: cq.Set{}, graph: aig.New("mem")}
	attrs := make([]*schema.Attribute, len(rows))
	for i := range rows {
		g := float64(groups[i])
		lo, hi := span(100*g, 100*g+99)
		attrs[i] = &schema.Attribute{Relation: fmt.Sprintf("r%d", i), Name: "v", Type: schema.TypeNum, Min: lo, Max: hi}
		f.graph.AddVertex(attrs[i])

		table := fmt.Sprintf("r%d", i)
		for _, v := range rows[i] {
			f.db.rows[table] = append(f.db.rows[table], cq.Tuple{v})
		}
		f.cqs[i] = &cq.CQ{
			ID:          i,
			Label:       fmt.Sprintf("q%d", i),
			Text:        "SELECT v FROM " + table,
			Weight:      weights[i],
			From:        table,
			Projections: []cq.Projection{{Expr: "v", Type: schema.TypeNum, Attr: attrs[i]}},
		}
	}
	for i, a := range attrs {
		for _, b := range attrs[i+1:] {
			f.graph.AddEdge(a, b, aig.NumIntersect(a, b))
		}
	}
	return f
}

func (f *fixture) strategy(name string) Strategy {
	return f.tuned(name, nil)
}

// tuned builds a strategy after tune adjusted its dependencies and the
// executor settings.
func (f *fixture) tuned(name string, tune func(*Deps, *engine.NewExecutorParams)) Strategy {
	deps := Deps{
		AIG:  f.graph,
		Rand: rand.New(rand.NewPCG(1, 2)),
	}
	params := engine.NewExecutorParams{DB: f.db}
	if tune != nil {
		tune(&deps, &params)
	}
	deps.Executor = engine.NewExecutor(params)
	s, err := New(name, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// slowDown makes the full queries of the given candidates time out.
func (f *fixture) slowDown(ids ...int) {
	f.db.slow = make(map[string]bool)
	for _, id := range ids {
		f.db.slow[f.cqs[id].From] = true
	}
}

// bestObjective is the smallest objective over every informative tuple,
// computed from the raw rows.
func (f *fixture) bestObjective() (float64, bool) {
	supports := make(map[cq.TupleKey]cq.IDSet)
	for id, q := range f.cqs {
		for _, t := range f.db.rows[q.From] {
			if supports[t.Key()] == nil {
				supports[t.Key()] = cq.NewIDSet()
			}
			supports[t.Key()].Add(id)
		}
	}
	best, found := 0.0, false
	for _, s := range supports {
		if s.Equal(f.cqs.IDs()) {
			continue
		}
		if v := Objective(f.cqs, s); !found || v < best {
			best, found = v, true
		}
	}
	return best, found
}
