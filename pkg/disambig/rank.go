package disambig

import (
	"cmp"
	"context"
	"slices"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// ranked is a candidate witness.
type ranked struct {
	key     cq.TupleKey
	tuple   cq.Tuple
	support cq.IDSet
	score   float64
	order   int
	probed  bool
}

type scoreFunc func(q cq.Set, s cq.IDSet) float64

// candidates lists the tuples of m in discovery order with their scores.
func candidates(q cq.Set, m *cq.TupleMap, score scoreFunc) []*ranked {
	memo := make(map[string]float64)
	out := make([]*ranked, 0, m.Len())
	for i, k := range m.Keys() {
		t, _ := m.Tuple(k)
		support := m.Support(k).Clone()
		sk := support.Key()
		v, ok := memo[sk]
		if !ok {
			v = score(q, support)
			memo[sk] = v
		}
		out = append(out, &ranked{key: k, tuple: t, support: support, score: v, order: i})
	}
	return out
}

func sortRanked(rs []*ranked) {
	slices.SortStableFunc(rs, func(a, b *ranked) int {
		if c := cmp.Compare(a.score, b.score); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})
}

// best sorts the candidates and settles the head. The head is probed
// against the check set (queries whose results are unknown); if it turns
// out to be returned by every candidate it is scrubbed and dropped, and the
// next head is tried. It returns nil when no informative tuple remains.
func (b *base) best(ctx context.Context, q cq.Set, bt *batch, rs []*ranked, check cq.IDSet, score scoreFunc) (*ranked, []*ranked, error) {
	all := q.IDs()
	checkKey := check.Key()
	for len(rs) > 0 {
		sortRanked(rs)
		head := rs[0]
		if last, ok := bt.probed[head.key]; head.probed || (ok && last == checkKey) {
			return head, rs, nil
		}
		head.probed = true
		bt.probed[head.key] = checkKey

		for _, id := range check.Sorted() {
			if head.support.Has(id) || bt.errors.Has(id) {
				continue
			}
			in, err := b.deps.Executor.TupleInQuery(ctx, head.tuple, q[id], bt.states.Get(id))
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				logger.Warn("[Disambig] Probe failed", "cq", id, "err", err)
				bt.errors.Add(id)
				continue
			}
			if in {
				head.support.Add(id)
			}
		}
		head.score = score(q, head.support)
		bt.tuples.Set(head.key, head.support)

		if head.support.Equal(all) {
			bt.drop(head.key)
			rs = rs[1:]
		}
	}
	return nil, rs, nil
}

// logTop prints the best few candidates at debug level.
func logTop(rs []*ranked, n int) {
	for i, r := range rs {
		if i >= n {
			break
		}
		logger.Debug("[Disambig] Candidate", "tuple", r.tuple.String(), "score", r.score, "cqs", r.support.String())
	}
}
