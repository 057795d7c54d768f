package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/pkg/db/sqlite/sqlitetest"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/engine"
)

func namesTask(id string) *task.Task {
	return &task.Task{
		ID: id,
		Queries: map[string]string{
			"0": "SELECT actor.name FROM actor",
			"1": "SELECT director.name FROM director",
			"2": "SELECT movie.title FROM movie",
		},
		Answers: []string{"0"},
	}
}

func newRunner(t *testing.T, strategy string, repo *cache.Repository) *Runner {
	t.Helper()
	r, err := NewRunner(NewRunnerParams{
		DB:         sqlitetest.Open(t),
		Repository: repo,
		Strategy:   strategy,
		Options:    Options{MaxIterations: 10, TopTuples: 3},
	})
	require.NoError(t, err)
	return r
}

func TestRunConverges(t *testing.T) {
	for _, name := range []string{disambig.NameGreedyAll, disambig.NamePartition, disambig.NameGreedyBB, disambig.NameL1S} {
		t.Run(name, func(t *testing.T) {
			res, err := newRunner(t, name, nil).Run(context.Background(), namesTask("1"))
			require.NoError(t, err)
			require.True(t, res.Succeeded(), "reason: %s", res.Reason)
			assert.Equal(t, []int{0}, res.Remaining)
			assert.Positive(t, *res.Iterations)
		})
	}
}

func TestRunPersistsResults(t *testing.T) {
	repo := cache.NewRepository(cache.NewFileBackend(t.TempDir()))
	r := newRunner(t, disambig.NameGreedyAll, repo)

	_, err := r.Run(context.Background(), namesTask("7"))
	require.NoError(t, err)

	mc := engine.NewMemoryCache()
	require.NoError(t, repo.LoadResults(context.Background(), r.resultsKey("7"), mc))
	assert.Positive(t, mc.Len())
}

func TestNewRunnerRejectsUnknownStrategy(t *testing.T) {
	_, err := NewRunner(NewRunnerParams{DB: sqlitetest.Open(t), Strategy: "oracle"})
	assert.ErrorIs(t, err, disambig.ErrUnknownStrategy)
}

func TestStats(t *testing.T) {
	o, res, err := newRunner(t, disambig.NameGreedyAll, nil).Stats(context.Background(), namesTask("1"))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Valid.Len())
	assert.Equal(t, 10, o.Tuples)
	assert.Equal(t, map[int]int{0: 3, 1: 3, 2: 5}, o.PerCQ)
	assert.Equal(t, []int{2}, o.Top[0].Support)
	assert.Equal(t, 5, o.Top[0].Tuples)
}

func TestConfusion(t *testing.T) {
	r := newRunner(t, disambig.NameGreedyAll, nil)

	got, err := r.Confusion(context.Background(), namesTask("1"))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-9)

	tk := namesTask("2")
	tk.Answers = []string{"0", "1"}
	_, err = r.Confusion(context.Background(), tk)
	assert.ErrorIs(t, err, ErrNoSingleAnswer)
}

func TestRunAll(t *testing.T) {
	r := newRunner(t, disambig.NamePartition, nil)

	var (
		mu   sync.Mutex
		recs []results.Record
	)
	err := r.RunAll(context.Background(), RunAllParams{
		RunID:   "run-1",
		Tasks:   []*task.Task{namesTask("1"), namesTask("2")},
		Workers: 2,
		Sink: SinkFunc(func(_ context.Context, rec results.Record) error {
			mu.Lock()
			defer mu.Unlock()
			recs = append(recs, rec)
			return nil
		}),
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "run-1", rec.RunID)
		assert.Equal(t, ":memory:", rec.Database)
		assert.Equal(t, 3, rec.TotalCQ)
		assert.True(t, rec.Succeeded())
	}
}

func TestOpenRepository(t *testing.T) {
	cfg := &config.Config{CacheBackend: "file", CacheDir: t.TempDir()}
	repo, err := OpenRepository(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, repo)

	_, err = OpenRepository(context.Background(), &config.Config{CacheBackend: "postgres"}, nil)
	assert.Error(t, err)
}

func TestOpenDatabaseSqlite(t *testing.T) {
	cfg := &config.Config{Engine: "sqlite", DatabaseURL: t.TempDir(), StatementTimeout: time.Second}
	conn, err := OpenDatabase(context.Background(), cfg, "movies")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "movies", conn.Name())
}

func TestOpenCatalog(t *testing.T) {
	cfg := &config.Config{IgnoreRelations: []string{"directs"}, TextIndexPrefix: 15, AIGParallelism: 2}
	cat := OpenCatalog(cfg, cache.NewRepository(nil), nil)

	entry, err := cat.Get(context.Background(), sqlitetest.Open(t))
	require.NoError(t, err)
	assert.NotContains(t, entry.Schema.Relations, "directs")
	assert.Contains(t, entry.Schema.Relations, "actor")
}

func TestPoolReusesConnections(t *testing.T) {
	cfg := &config.Config{Engine: "sqlite", DatabaseURL: t.TempDir(), StatementTimeout: time.Second}
	pool := NewPool(cfg, cache.NewRepository(nil), nil)
	defer pool.Close()
	ctx := context.Background()

	a, err := pool.Runner(ctx, "movies", disambig.NameGreedyAll)
	require.NoError(t, err)
	b, err := pool.Runner(ctx, "movies", disambig.NamePartition)
	require.NoError(t, err)
	assert.Same(t, a.conn, b.conn)
	assert.Equal(t, "movies", b.Database())

	_, err = pool.Runner(ctx, "movies", "nope")
	assert.ErrorIs(t, err, disambig.ErrUnknownStrategy)
	assert.Len(t, pool.conns, 1)
}
