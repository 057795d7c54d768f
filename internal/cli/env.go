package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/internal/catalog"
	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/runner"
	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/engine"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// environment is what a database command needs: the configuration, the
// target database, the cache repository and the catalog built on top.
type environment struct {
	cfg     *config.Config
	conn    db.Database
	meta    *pgxpool.Pool
	repo    *cache.Repository
	catalog *catalog.Catalog
	trace   *engine.ExecutionTrace
	tracer  engine.Tracer
}

func openEnvironment(ctx context.Context, opts *RootOptions) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, trace: engine.NewExecutionTrace()}
	env.tracer = env.trace
	if opts.Debug {
		env.tracer = engine.MultiTracer{env.trace, engine.LogTracer{}}
	}
	if cfg.MetaDatabaseURL != "" {
		env.meta, err = pgxpool.New(ctx, cfg.MetaDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
		}
	}

	env.conn, err = runner.OpenDatabase(ctx, cfg, opts.Database)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.repo, err = runner.OpenRepository(ctx, cfg, env.meta)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.catalog = runner.OpenCatalog(cfg, env.repo, env.meta)

	logger.Debug("[CLI] Environment ready", "engine", cfg.Engine, "database", env.conn.Name(), "cache", cfg.CacheBackend)
	return env, nil
}

func (e *environment) runner(strategy string) (*runner.Runner, error) {
	return runner.NewRunner(runner.NewRunnerParams{
		DB:         e.conn,
		Catalog:    e.catalog,
		Repository: e.repo,
		Strategy:   strategy,
		Options:    runner.OptionsFromConfig(e.cfg),
		Tracer:     e.tracer,
	})
}

func (e *environment) Close() {
	snap := e.trace.Snapshot()
	if len(snap.Counts) > 0 {
		logger.Info("[CLI] Execution trace", "events", snap.Counts, "rows", snap.Rows)
	}
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			logger.Warn("[CLI] Failed to close database", "err", err)
		}
	}
	if e.meta != nil {
		e.meta.Close()
	}
}

// loadTasks reads a task file and applies the --task filter.
func loadTasks(path string, opts *RootOptions) ([]*task.Task, error) {
	tasks, err := task.Load(path)
	if err != nil {
		return nil, err
	}
	if len(opts.Tasks) == 0 {
		return tasks, nil
	}

	out := make([]*task.Task, 0, len(opts.Tasks))
	var errs []error
	for _, id := range opts.Tasks {
		t, err := task.Find(tasks, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	return out, errors.Join(errs...)
}

// withoutExcluded drops the tasks Excluded reports on.
func withoutExcluded(tasks []*task.Task) []*task.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if reason := task.Excluded(t); reason != "" {
			logger.Info("[CLI] Skipping task", "task", t.ID, "reason", reason)
			continue
		}
		out = append(out, t)
	}
	return out
}
