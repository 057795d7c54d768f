// Package catalog shares the schema and attribute intersection graph of
// each database between the tasks of a process.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/leaselock"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Entry is read only once returned.
type Entry struct {
	Schema *schema.Schema
	AIG    *aig.Graph
}

type Catalog struct {
	repo   *cache.Repository
	locks  *leaselock.Client
	builds *semaphore.Weighted

	ignore          []string
	textIndexPrefix int
	parallelism     int

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*Entry
}

type NewCatalogParams struct {
	Repository *cache.Repository
	// Locks serialises graph builds across processes. Optional.
	Locks *leaselock.Client
	// MaxBuilds bounds concurrent graph builds in this process.
	MaxBuilds       int
	Ignore          []string
	TextIndexPrefix int
	// Parallelism bounds concurrent text intersections of one build.
	Parallelism int
}

func NewCatalog(params NewCatalogParams) *Catalog {
	maxBuilds := params.MaxBuilds
	if maxBuilds <= 0 {
		maxBuilds = 1
	}
	repo := params.Repository
	if repo == nil {
		repo = cache.NewRepository(nil)
	}
	return &Catalog{
		repo:            repo,
		locks:           params.Locks,
		builds:          semaphore.NewWeighted(int64(maxBuilds)),
		ignore:          params.Ignore,
		textIndexPrefix: params.TextIndexPrefix,
		parallelism:     params.Parallelism,
		entries:         make(map[string]*Entry),
	}
}

// Get returns the entry of conn's database, loading it from the cache
// repository or building it on first use.
func (c *Catalog) Get(ctx context.Context, conn db.Database) (*Entry, error) {
	name := conn.Name()
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		e, err := c.load(ctx, conn)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[name] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops the entry of database from memory and from the cache
// repository, forcing the next Get to rebuild it. Cached query results of
// the database are purged as well.
func (c *Catalog) Invalidate(ctx context.Context, database string) error {
	c.mu.Lock()
	delete(c.entries, database)
	c.mu.Unlock()

	return errors.Join(
		c.repo.Invalidate(ctx, cache.Key{Kind: cache.KindSchema, Database: database}),
		c.repo.Invalidate(ctx, cache.Key{Kind: cache.KindAIG, Database: database}),
		c.repo.Purge(ctx, cache.KindResults, database),
	)
}

func (c *Catalog) load(ctx context.Context, conn db.Database) (*Entry, error) {
	if e, ok := c.cached(ctx, conn.Name()); ok {
		return e, nil
	}

	if err := c.builds.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.builds.Release(1)

	if c.locks == nil {
		return c.build(ctx, conn)
	}

	var e *Entry
	err := c.locks.WithLease(ctx, leaselock.Key("aig", conn.Name()), leaselock.Options{
		TTL:         2 * time.Minute,
		Wait:        true,
		WaitJitter:  250 * time.Millisecond,
		TokenPrefix: "catalog-",
	}, func(ctx context.Context) error {
		// another process may have finished the build while we waited
		if cached, ok := c.cached(ctx, conn.Name()); ok {
			e = cached
			return nil
		}
		built, err := c.build(ctx, conn)
		e = built
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Catalog) cached(ctx context.Context, database string) (*Entry, bool) {
	s := &schema.Schema{}
	if err := c.repo.Load(ctx, cache.Key{Kind: cache.KindSchema, Database: database}, s); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("[Catalog] Ignoring unreadable schema", "database", database, "err", err)
		}
		return nil, false
	}
	g := aig.New(database)
	if err := c.repo.Load(ctx, cache.Key{Kind: cache.KindAIG, Database: database}, g); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("[Catalog] Ignoring unreadable graph", "database", database, "err", err)
		}
		return nil, false
	}
	logger.Info("[Catalog] Loaded from cache", "database", database, "relations", len(s.Relations), "edges", g.EdgeCount())
	return &Entry{Schema: s, AIG: g}, true
}

func (c *Catalog) build(ctx context.Context, conn db.Database) (*Entry, error) {
	s, err := schema.Load(ctx, conn, schema.LoadParams{
		Database:        conn.Name(),
		Ignore:          c.ignore,
		TextIndexPrefix: c.textIndexPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load schema of %s: %w", conn.Name(), err)
	}
	g, err := aig.Build(ctx, aig.BuildParams{
		Schema:      s,
		Intersector: conn,
		Parallelism: c.parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build attribute graph of %s: %w", conn.Name(), err)
	}

	if err := c.repo.Save(ctx, cache.Key{Kind: cache.KindSchema, Database: conn.Name()}, s); err != nil {
		logger.Warn("[Catalog] Failed to persist schema", "database", conn.Name(), "err", err)
	}
	if err := c.repo.Save(ctx, cache.Key{Kind: cache.KindAIG, Database: conn.Name()}, g); err != nil {
		logger.Warn("[Catalog] Failed to persist graph", "database", conn.Name(), "err", err)
	}
	return &Entry{Schema: s, AIG: g}, nil
}
