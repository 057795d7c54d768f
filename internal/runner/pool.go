package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/internal/catalog"
	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/engine"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// Pool keeps one connection per database and hands out runners on top of
// them. It is safe for concurrent use.
type Pool struct {
	cfg     *config.Config
	repo    *cache.Repository
	catalog *catalog.Catalog

	mu    sync.Mutex
	conns map[string]db.Database
}

func NewPool(cfg *config.Config, repo *cache.Repository, cat *catalog.Catalog) *Pool {
	return &Pool{cfg: cfg, repo: repo, catalog: cat, conns: make(map[string]db.Database)}
}

// Runner returns a runner for strategy against database, connecting on
// first use.
func (p *Pool) Runner(ctx context.Context, database, strategy string) (*Runner, error) {
	if !validStrategy(strategy) {
		return nil, fmt.Errorf("%w: %q", disambig.ErrUnknownStrategy, strategy)
	}
	conn, err := p.conn(ctx, database)
	if err != nil {
		return nil, err
	}
	var tracer engine.Tracer
	if p.cfg.Debug {
		tracer = engine.LogTracer{}
	}
	return NewRunner(NewRunnerParams{
		DB:         conn,
		Catalog:    p.catalog,
		Repository: p.repo,
		Strategy:   strategy,
		Options:    OptionsFromConfig(p.cfg),
		Tracer:     tracer,
	})
}

func (p *Pool) conn(ctx context.Context, database string) (db.Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[database]; ok {
		return c, nil
	}
	c, err := OpenDatabase(ctx, p.cfg, database)
	if err != nil {
		return nil, err
	}
	logger.Info("[Runner] Connected", "database", c.Name(), "engine", p.cfg.Engine)
	p.conns[database] = c
	return c, nil
}

// Close closes every connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, c := range p.conns {
		errs = append(errs, c.Close())
		delete(p.conns, name)
	}
	return errors.Join(errs...)
}
