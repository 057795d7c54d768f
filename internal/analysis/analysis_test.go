package analysis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db/sqlite/sqlitetest"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

func record(cqs int, iterations *int, query, comp time.Duration) results.Record {
	return results.Record{
		TotalCQ:    cqs,
		Iterations: iterations,
		Totals:     disambig.Meta{QueryTime: query, CompTime: comp},
	}
}

func iters(n int) *int { return &n }

func sampleRecords() []results.Record {
	return []results.Record{
		record(1, iters(0), 0, 0),
		record(4, iters(2), time.Second, time.Second),
		record(20, iters(7), 7*time.Second, 0),
		record(3, nil, time.Second, 0),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords())

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, [MaxBucket + 1]int{1, 1, 2, 2, 2, 2}, s.AtMost)
	assert.Equal(t, 1, s.Beyond)

	assert.Equal(t, 0.0, s.Iterations.Min)
	assert.Equal(t, 2.0, s.Iterations.Median)
	assert.Equal(t, 7.0, s.Iterations.Max)
	assert.InDelta(t, 3.0, s.Iterations.Mean, 1e-9)
	assert.Equal(t, 1.0, s.CQs.Min)
	assert.Equal(t, 20.0, s.CQs.Max)

	assert.Equal(t, 3*time.Second, s.MeanTotalTime)
	assert.Equal(t, 7*time.Second, s.MaxTotalTime)
	assert.Equal(t, time.Second, s.MeanTimePerIter)
	assert.Equal(t, time.Second, s.MaxTimePerIter)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{}, s)

	var buf bytes.Buffer
	Render(&buf, s)
	assert.Contains(t, buf.String(), "0 (0.00%)")
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, Summarize(sampleRecords()))

	out := buf.String()
	assert.Contains(t, out, "ITER INFO")
	assert.Contains(t, out, "# Tasks >= 6 Iter (%)")
	assert.Contains(t, out, "1 (25.00%)")
	assert.Contains(t, out, "3.000s")
}

func TestConfusion(t *testing.T) {
	assert.InDelta(t, 1.0/3, Confusion(4, map[int]int{0: 4, 1: 2, 2: 0}), 1e-9)
	assert.Equal(t, 0.0, Confusion(4, map[int]int{0: 4}))
	assert.Equal(t, 0.0, Confusion(0, map[int]int{0: 0}))
}

func textCQ(id int, text string, typ schema.AttrType) *cq.CQ {
	return &cq.CQ{ID: id, Text: text, Weight: 1, Projections: []cq.Projection{{Expr: "x", Type: typ}}}
}

func TestTaskConfusion(t *testing.T) {
	conn := sqlitetest.Open(t)
	candidates := cq.NewSet(
		textCQ(0, "SELECT name FROM actor", schema.TypeText),
		textCQ(1, "SELECT name FROM director", schema.TypeText),
		textCQ(2, "SELECT id FROM movie", schema.TypeNum),
	)

	got, err := TaskConfusion(context.Background(), conn, candidates, 0)
	require.NoError(t, err)
	// actor names: 3 non NULL, one shared with director
	assert.InDelta(t, 0.25, got, 1e-9)

	_, err = TaskConfusion(context.Background(), conn, cq.NewSet(
		textCQ(0, "SELECT name FROM actor WHERE id = 99", schema.TypeText),
		textCQ(1, "SELECT name FROM director", schema.TypeText),
	), 0)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestOverlap(t *testing.T) {
	m := cq.NewTupleMap()
	m.Add(cq.Tuple{"a"}, 0, 1)
	m.Add(cq.Tuple{"b"}, 0, 1)
	m.Add(cq.Tuple{"c"}, 2)
	m.Add(cq.Tuple{"d"}, 0)

	o := Overlap(m, 2)
	assert.Equal(t, 4, o.Tuples)
	assert.Equal(t, map[int]int{0: 3, 1: 2, 2: 1}, o.PerCQ)
	assert.Equal(t, []SupportCount{{Support: []int{0, 1}, Tuples: 2}, {Support: []int{2}, Tuples: 1}}, o.Top)
}
