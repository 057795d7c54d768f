package disambig

import (
	"context"
	"slices"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

// l1s runs every candidate and scores each tuple by how its support sits
// among all observed supports: u+ counts distinct supports strictly
// containing it, u- counts tuples sharing it plus distinct supports
// strictly inside it. The pick comes from the skyline of (min, max): the
// largest min(u+, u-), then the smallest max, then discovery order.
type l1s struct {
	*base
}

func (s *l1s) Name() string { return NameL1S }

type l1sScore struct {
	lo, hi int
}

func (s *l1s) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	bt := newBatch(round.States)
	if err := s.run(ctx, bt, q, nil); err != nil {
		return nil, err
	}

	start := time.Now()
	var pick *ranked
	for {
		rs := candidates(q, bt.tuples, Objective)
		if len(rs) == 0 {
			break
		}
		scores := skylineScores(rs)
		slices.SortStableFunc(rs, func(a, b *ranked) int {
			sa, sb := scores[a.key], scores[b.key]
			switch {
			case sa.lo != sb.lo:
				return sb.lo - sa.lo
			case sa.hi != sb.hi:
				return sa.hi - sb.hi
			default:
				return a.order - b.order
			}
		})

		// best settles the head only; order is kept by the zero score.
		for i, r := range rs {
			r.order = i
			r.score = 0
		}
		head, _, err := s.best(ctx, q, bt, rs[:1], bt.timedOut, func(cq.Set, cq.IDSet) float64 { return 0 })
		if err != nil {
			return nil, err
		}
		if head != nil {
			pick = head
			break
		}
	}

	meta := bt.meta(q)
	meta.CompTime = time.Since(start)
	return outcome(q, bt, pick, meta), nil
}

func skylineScores(rs []*ranked) map[cq.TupleKey]l1sScore {
	counts := make(map[string]int)
	supports := make(map[string]cq.IDSet)
	for _, r := range rs {
		k := r.support.Key()
		counts[k]++
		supports[k] = r.support
	}

	out := make(map[cq.TupleKey]l1sScore, len(rs))
	for _, r := range rs {
		k := r.support.Key()
		plus, minus := 0, counts[k]-1
		for ok, other := range supports {
			if ok == k {
				continue
			}
			switch {
			case r.support.ProperSubsetOf(other):
				plus++
			case other.ProperSubsetOf(r.support):
				minus++
			}
		}
		out[r.key] = l1sScore{lo: min(plus, minus), hi: max(plus, minus)}
	}
	return out
}
