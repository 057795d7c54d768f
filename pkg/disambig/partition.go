package disambig

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// partition executes the QIG's maximal cliques in ascending bound order.
// A tuple is only judged once no clique still to run could also return it.
// The full variant stops when the best objective found is no worse than the
// next clique's bound; the first variant returns as soon as any clique
// yields a judged tuple.
type partition struct {
	*base
	name  string
	first bool
}

func (s *partition) Name() string { return s.name }

type boundedPart struct {
	bound float64
	ids   cq.IDSet
	order int
}

func (s *partition) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	bt := newBatch(round.States)

	start := time.Now()
	g, err := s.buildQIG(q)
	if err != nil {
		return nil, err
	}
	bounder := NewBounder(q, s.deps.BoundLimit)
	ps := g.PartitionSet()
	parts := make([]boundedPart, 0, ps.Len())
	for i, p := range ps.Parts {
		parts = append(parts, boundedPart{bound: bounder.Bound(p.IDs), ids: p.IDs, order: i})
	}
	slices.SortStableFunc(parts, func(a, b boundedPart) int {
		if c := cmp.Compare(a.bound, b.bound); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})
	comp := time.Since(start)

	var pick *ranked
	for i, part := range parts {
		if pick != nil && pick.score <= part.bound {
			logger.Debug("[Disambig] Pruned remaining cliques", "best", pick.score, "bound", part.bound)
			break
		}
		if todo := part.ids.Minus(bt.executed); todo.Len() > 0 {
			if err := s.run(ctx, bt, q, todo); err != nil {
				return nil, err
			}
		}

		began := time.Now()
		future := futureParts(parts[i+1:], bt.executed)
		final := bt.tuples.Filter(func(_ cq.TupleKey, support cq.IDSet) bool {
			return !slices.ContainsFunc(future, support.SubsetOf)
		})
		rs := candidates(q, final, Objective)
		found, rs, err := s.best(ctx, q, bt, rs, bt.timedOut, Objective)
		if err != nil {
			return nil, err
		}
		comp += time.Since(began)

		if found != nil && (pick == nil || found.score < pick.score) {
			pick = found
			logTop(rs, s.deps.TopTuples)
		}
		if pick != nil && s.first {
			break
		}
	}

	meta := bt.meta(q)
	meta.CompTime = comp
	return outcome(q, bt, pick, meta), nil
}

// futureParts returns the cliques still holding unexecuted queries.
func futureParts(rest []boundedPart, executed cq.IDSet) []cq.IDSet {
	var out []cq.IDSet
	for _, p := range rest {
		if !p.ids.SubsetOf(executed) {
			out = append(out, p.ids)
		}
	}
	return out
}
