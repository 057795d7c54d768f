// Package runner runs disambiguation tasks against one database.
package runner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umich-dbgroup/litmus/internal/analysis"
	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/internal/catalog"
	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/engine"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/parser"
	"github.com/umich-dbgroup/litmus/pkg/qig"
)

// ErrNoSingleAnswer is returned by Confusion for tasks without exactly one
// intended query.
var ErrNoSingleAnswer = errors.New("task needs exactly one answer")

// Options are the strategy and session knobs of a run.
type Options struct {
	BoundLimit            int
	TopTuples             int
	MaxIncrementalFetches int
	MaxReruns             int
	MaxIterations         int
	QIGMode               qig.Mode
	Narrow                bool
	Seed                  int64
}

// OptionsFromConfig copies the run knobs of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BoundLimit:            cfg.BoundLimit,
		TopTuples:             cfg.TopTuples,
		MaxIncrementalFetches: cfg.MaxIncrementalFetches,
		MaxReruns:             cfg.MaxReruns,
		MaxIterations:         cfg.MaxIterations,
		QIGMode:               qig.Mode(cfg.QIGMode),
		Narrow:                cfg.Narrow,
		Seed:                  cfg.Seed,
	}
}

type Runner struct {
	conn     db.Database
	catalog  *catalog.Catalog
	repo     *cache.Repository
	parser   parser.Parser
	strategy string
	opts     Options
	tracer   engine.Tracer
}

type NewRunnerParams struct {
	DB         db.Database
	Catalog    *catalog.Catalog
	Repository *cache.Repository
	// Parser defaults to a cached Postgres grammar parser.
	Parser   parser.Parser
	Strategy string
	Options  Options
	Tracer   engine.Tracer
}

func NewRunner(params NewRunnerParams) (*Runner, error) {
	if params.DB == nil {
		return nil, errors.New("runner needs a database")
	}
	if !validStrategy(params.Strategy) {
		return nil, fmt.Errorf("%w: %q", disambig.ErrUnknownStrategy, params.Strategy)
	}
	repo := params.Repository
	if repo == nil {
		repo = cache.NewRepository(nil)
	}
	cat := params.Catalog
	if cat == nil {
		cat = catalog.NewCatalog(catalog.NewCatalogParams{Repository: repo})
	}
	p := params.Parser
	if p == nil {
		p = parser.NewCache(parser.PostgresParser{})
	}
	return &Runner{
		conn:     params.DB,
		catalog:  cat,
		repo:     repo,
		parser:   p,
		strategy: params.Strategy,
		opts:     params.Options,
		tracer:   params.Tracer,
	}, nil
}

func validStrategy(name string) bool {
	for _, n := range disambig.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Database is the name of the database tasks run against.
func (r *Runner) Database() string { return r.conn.Name() }

// Prepare parses the candidates of t against the database schema.
func (r *Runner) Prepare(ctx context.Context, t *task.Task) (*task.Prepared, *catalog.Entry, error) {
	entry, err := r.catalog.Get(ctx, r.conn)
	if err != nil {
		return nil, nil, err
	}
	p := task.Prepare(task.PrepareParams{Task: t, Parser: r.parser, Schema: entry.Schema})
	return p, entry, nil
}

// Run disambiguates one task with the simulated oracle. Query results are
// loaded from and written back to the cache repository. An inconsistent
// outcome returns the result together with disambig.ErrInconsistentResult.
func (r *Runner) Run(ctx context.Context, t *task.Task) (*disambig.TaskResult, error) {
	p, entry, err := r.Prepare(ctx, t)
	if err != nil {
		return nil, err
	}
	mc := r.loadResults(ctx, t.ID)

	strat, err := disambig.New(r.strategy, disambig.Deps{
		Executor:   r.executor(mc),
		AIG:        entry.AIG,
		QIGMode:    r.opts.QIGMode,
		Narrow:     r.opts.Narrow,
		BoundLimit: r.opts.BoundLimit,
		TopTuples:  r.opts.TopTuples,
		MaxReruns:  r.opts.MaxReruns,
		Rand:       r.rand(t.ID),
	})
	if err != nil {
		return nil, err
	}
	session := disambig.NewSession(disambig.NewSessionParams{
		Strategy:      strat,
		Oracle:        disambig.SimulatedOracle{Answers: p.Answers},
		Answers:       p.Answers,
		MaxIterations: r.opts.MaxIterations,
	})

	res, runErr := session.Run(ctx, p.Candidates, p.States)
	r.saveResults(ctx, t.ID, mc)
	if res != nil {
		res.Totals.ParseTime += p.ParseTime
	}
	return res, runErr
}

// Stats executes every candidate once without asking for feedback and
// reports how the results overlap.
func (r *Runner) Stats(ctx context.Context, t *task.Task) (*analysis.OverlapStats, *engine.Result, error) {
	p, _, err := r.Prepare(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	mc := r.loadResults(ctx, t.ID)
	res, err := r.executor(mc).Run(ctx, engine.Request{Candidates: p.Candidates, States: p.States})
	if err != nil {
		return nil, nil, err
	}
	r.saveResults(ctx, t.ID, mc)
	o := analysis.Overlap(res.Tuples, r.opts.TopTuples)
	return &o, res, nil
}

// Confusion computes the task query confusion of t.
func (r *Runner) Confusion(ctx context.Context, t *task.Task) (float64, error) {
	if len(t.Answers) != 1 {
		return 0, fmt.Errorf("task %s: %w", t.ID, ErrNoSingleAnswer)
	}
	p, _, err := r.Prepare(ctx, t)
	if err != nil {
		return 0, err
	}
	return analysis.TaskConfusion(ctx, r.conn, p.Candidates, p.Answers.Sorted()[0])
}

func (r *Runner) executor(mc *engine.MemoryCache) *engine.Executor {
	return engine.NewExecutor(engine.NewExecutorParams{
		DB:                    r.conn,
		Cache:                 mc,
		Tracer:                r.tracer,
		MaxIncrementalFetches: r.opts.MaxIncrementalFetches,
	})
}

func (r *Runner) resultsKey(taskID string) cache.Key {
	return cache.Key{Kind: cache.KindResults, Database: r.conn.Name(), Task: taskID}
}

func (r *Runner) loadResults(ctx context.Context, taskID string) *engine.MemoryCache {
	mc := engine.NewMemoryCache()
	if err := r.repo.LoadResults(ctx, r.resultsKey(taskID), mc); err != nil {
		logger.Warn("[Runner] Ignoring unreadable result cache", "task", taskID, "err", err)
	}
	return mc
}

func (r *Runner) saveResults(ctx context.Context, taskID string, mc *engine.MemoryCache) {
	if mc.Len() == 0 {
		return
	}
	if err := r.repo.SaveResults(ctx, r.resultsKey(taskID), mc); err != nil {
		logger.Warn("[Runner] Failed to persist result cache", "task", taskID, "err", err)
	}
}

// rand is seeded per task so runs are reproducible regardless of order.
func (r *Runner) rand(taskID string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(taskID))
	return rand.New(rand.NewPCG(uint64(r.opts.Seed), h.Sum64()))
}

// Sink receives the record of every finished task.
type Sink interface {
	Write(ctx context.Context, rec results.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec results.Record) error

func (f SinkFunc) Write(ctx context.Context, rec results.Record) error { return f(ctx, rec) }

type RunAllParams struct {
	RunID   string
	Tasks   []*task.Task
	Workers int
	Sink    Sink
}

// RunAll runs tasks on a bounded worker pool. Inconsistent outcomes are
// recorded as failed tasks, any other error stops the run.
func (r *Runner) RunAll(ctx context.Context, params RunAllParams) error {
	start := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(params.Workers, 1))

	for _, t := range params.Tasks {
		g.Go(func() error {
			res, err := r.Run(gCtx, t)
			reason := ""
			if errors.Is(err, disambig.ErrInconsistentResult) && res != nil {
				logger.Error("[Runner] Inconsistent result", "task", t.ID, "err", err)
				reason = err.Error()
				err = nil
			}
			if err != nil {
				return fmt.Errorf("task %s: %w", t.ID, err)
			}
			rec := results.NewRecord(params.RunID, t.ID, r.conn.Name(), len(t.Queries), res)
			if reason != "" {
				rec.Reason = reason
			}
			if params.Sink == nil {
				return nil
			}
			return params.Sink.Write(gCtx, rec)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("[Runner] Run finished", "run", params.RunID, "tasks", len(params.Tasks), "strategy", r.strategy, "elapsed", time.Since(start))
	return nil
}
