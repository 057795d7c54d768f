package parser

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresParser_SPJ(t *testing.T) {
	res, err := PostgresParser{}.Parse(
		"SELECT a.name, m.title FROM actor AS a, movie AS m WHERE a.aid = m.mid AND m.year > 1990")
	require.NoError(t, err)

	require.Len(t, res.Projections, 2)
	assert.Equal(t, "a.name", res.Projections[0].Expr)
	assert.Equal(t, "m.title", res.Projections[1].Expr)
	assert.False(t, res.Projections[0].Aggregate)

	assert.Equal(t, map[string]string{"a": "actor", "m": "movie"}, res.Aliases)
	assert.Contains(t, res.From, "actor AS a")
	assert.Contains(t, res.Where, "m.year > 1990")

	require.Len(t, res.Predicates, 2)
	assert.Equal(t, "=", res.Predicates[0].Op)
	assert.Equal(t, []string{"a.aid", "m.mid"}, res.Predicates[0].Operands)
	assert.Equal(t, ">", res.Predicates[1].Op)
}

func TestPostgresParser_Aggregate(t *testing.T) {
	res, err := PostgresParser{}.Parse("SELECT count(m.mid) FROM movie AS movie_0 WHERE movie_0.year = 2000")
	require.NoError(t, err)
	require.Len(t, res.Projections, 1)
	assert.True(t, res.Projections[0].Aggregate)
	assert.Equal(t, "movie", res.Aliases["movie_0"])
}

func TestPostgresParser_Distinct(t *testing.T) {
	res, err := PostgresParser{}.Parse("SELECT DISTINCT movie.title FROM movie")
	require.NoError(t, err)
	assert.True(t, res.Distinct)
	assert.Empty(t, res.Where)
	assert.Equal(t, "movie", res.Aliases["movie"])
}

func TestPostgresParser_Unsupported(t *testing.T) {
	for _, sql := range []string{
		"SELECT m.title FROM movie AS m ORDER BY m.title",
		"SELECT m.year, count(m.mid) FROM movie AS m GROUP BY m.year",
		"SELECT m.title FROM movie AS m LIMIT 3",
		"SELECT * FROM movie",
		"SELECT upper(m.title) FROM movie AS m",
		"DELETE FROM movie",
	} {
		_, err := PostgresParser{}.Parse(sql)
		assert.ErrorIs(t, err, ErrUnsupported, sql)
	}
}

func TestPostgresParser_SyntaxError(t *testing.T) {
	_, err := PostgresParser{}.Parse("SELEC nothing")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

type countingParser struct {
	calls atomic.Int32
}

func (c *countingParser) Parse(sql string) (*Result, error) {
	c.calls.Add(1)
	if sql == "bad" {
		return nil, errors.New("bad query")
	}
	return &Result{Projections: []Projection{{Expr: sql}}}, nil
}

func TestCache(t *testing.T) {
	inner := &countingParser{}
	c := NewCache(inner)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Parse("q1")
			assert.NoError(t, err)
			assert.Equal(t, "q1", res.Projections[0].Expr)
		}()
	}
	wg.Wait()

	_, err := c.Parse("bad")
	require.Error(t, err)
	_, err = c.Parse("bad")
	require.Error(t, err)

	assert.LessOrEqual(t, inner.calls.Load(), int32(9))
	before := inner.calls.Load()
	_, _ = c.Parse("q1")
	_, _ = c.Parse("bad")
	assert.Equal(t, before, inner.calls.Load(), "cached entries must not reparse")
	assert.Equal(t, 2, c.Len())
}
