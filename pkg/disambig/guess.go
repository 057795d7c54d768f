package disambig

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

// guess executes candidates one at a time, in random order or by
// descending weight with random tie breaks, and returns the first tuple
// that not every candidate returns.
type guess struct {
	*base
	name     string
	byWeight bool
}

func (s *guess) Name() string { return s.name }

func (s *guess) order(q cq.Set) []int {
	ids := q.SortedIDs()
	s.deps.Rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if s.byWeight {
		slices.SortStableFunc(ids, func(a, b int) int {
			return cmp.Compare(q[b].Weight, q[a].Weight)
		})
	}
	return ids
}

func (s *guess) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	bt := newBatch(round.States)
	var comp time.Duration

	var pick *ranked
	for _, id := range s.order(q) {
		before := bt.tuples.Len()
		if err := s.run(ctx, bt, q, cq.NewIDSet(id)); err != nil {
			return nil, err
		}
		if bt.tuples.Len() == before {
			continue
		}

		began := time.Now()
		check := q.IDs().Minus(bt.executed).Union(bt.timedOut)
		rs := candidates(q, bt.tuples, Objective)
		s.deps.Rand.Shuffle(len(rs), func(i, j int) { rs[i], rs[j] = rs[j], rs[i] })
		for i, r := range rs {
			r.order = i
			// Every candidate ties so the shuffled order decides.
			r.score = 0
		}
		found, _, err := s.best(ctx, q, bt, rs, check, func(cq.Set, cq.IDSet) float64 { return 0 })
		if err != nil {
			return nil, err
		}
		comp += time.Since(began)
		if found != nil {
			pick = found
			break
		}
	}

	meta := bt.meta(q)
	meta.CompTime = comp
	return outcome(q, bt, pick, meta), nil
}
