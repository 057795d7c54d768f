package aig

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/schema"

	"golang.org/x/sync/errgroup"
)

// ValueIntersector computes the distinct values two text attributes share.
type ValueIntersector interface {
	DistinctIntersect(ctx context.Context, a, b *schema.Attribute) ([]string, error)
}

type BuildParams struct {
	Schema      *schema.Schema
	Intersector ValueIntersector
	// Parallelism bounds concurrent text intersections. Defaults to 1.
	Parallelism int
}

// Build computes the intersect of every unordered pair of same typed
// attributes. Numeric pairs are resolved from their ranges; text pairs are
// delegated to the intersector.
func Build(ctx context.Context, params BuildParams) (*Graph, error) {
	start := time.Now()
	g := New(params.Schema.Database)
	attrs := params.Schema.Attributes()
	for _, a := range attrs {
		g.AddVertex(a)
	}

	limit := params.Parallelism
	if limit <= 0 {
		limit = 1
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	var mu sync.Mutex

	pairs := 0
	for i, a := range attrs {
		for _, b := range attrs[i+1:] {
			if a.Type != b.Type {
				continue
			}
			pairs++
			switch a.Type {
			case schema.TypeNum:
				mu.Lock()
				g.AddEdge(a, b, NumIntersect(a, b))
				mu.Unlock()
			case schema.TypeText:
				eg.Go(func() error {
					values, err := params.Intersector.DistinctIntersect(egCtx, a, b)
					if err != nil {
						return fmt.Errorf("failed to intersect %s and %s: %w", a, b, err)
					}
					logger.Debug("[AIG] Text intersect", "first", a.String(), "second", b.String(), "values", len(values))
					mu.Lock()
					g.AddEdge(a, b, schema.Text(values...))
					mu.Unlock()
					return nil
				})
			}
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logger.Info("[AIG] Built graph", "database", g.database, "attributes", len(attrs), "pairs", pairs, "edges", g.edges, "duration", time.Since(start))
	return g, nil
}

// NumIntersect is [max(a.min, b.min), min(a.max, b.max)], empty when either
// range is unknown or the ranges do not overlap.
func NumIntersect(a, b *schema.Attribute) schema.Intersect {
	if !a.HasRange() || !b.HasRange() {
		return schema.Empty(schema.TypeNum)
	}
	return schema.Num(math.Max(*a.Min, *b.Min), math.Min(*a.Max, *b.Max))
}
