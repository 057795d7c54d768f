package disambig

import (
	"context"
	"math"
	"time"

	"github.com/google/btree"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// greedyBB searches candidate supporting sets best bound first. Popping a
// set executes every query that could share a tuple with it, after which
// tuples whose support equals the set are exact witnesses. Every newly
// observed support is queued with its own bound.
type greedyBB struct {
	*base
}

func (s *greedyBB) Name() string { return NameGreedyBB }

type bbItem struct {
	bound float64
	seq   int
	set   cq.IDSet
	// exec is set plus every clique strictly containing it.
	exec cq.IDSet
}

func bbLess(a, b bbItem) bool {
	if a.bound != b.bound {
		return a.bound < b.bound
	}
	return a.seq < b.seq
}

func (s *greedyBB) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	bt := newBatch(round.States)

	start := time.Now()
	g, err := s.buildQIG(q)
	if err != nil {
		return nil, err
	}
	cliques := g.MaximalCliques()
	cliqueSets := make([]cq.IDSet, len(cliques))
	for i, c := range cliques {
		cliqueSets[i] = cq.NewIDSet(c...)
	}
	bounder := NewBounder(q, s.deps.BoundLimit)

	queue := btree.NewG(8, bbLess)
	queued := make(map[string]struct{})
	seq := 0
	push := func(set, exec cq.IDSet) {
		key := set.Key()
		if _, dup := queued[key]; dup || set.Len() == 0 {
			return
		}
		queued[key] = struct{}{}
		queue.ReplaceOrInsert(bbItem{bound: bounder.Bound(set), seq: seq, set: set, exec: exec})
		seq++
	}
	for _, c := range cliqueSets {
		push(c, c)
	}
	comp := time.Since(start)

	var witnesses *cq.TupleMap
	best := math.Inf(1)
	for queue.Len() > 0 {
		item, _ := queue.DeleteMin()
		if item.bound >= best {
			break
		}
		if todo := item.exec.Minus(bt.executed); todo.Len() > 0 {
			if err := s.run(ctx, bt, q, todo); err != nil {
				return nil, err
			}
		}

		began := time.Now()
		exact := bt.tuples.Filter(func(_ cq.TupleKey, support cq.IDSet) bool {
			return support.Equal(item.set)
		})
		if exact.Len() > 0 {
			if v := Objective(q, item.set); v < best {
				best = v
				witnesses = exact
				logger.Debug("[Disambig] Improved witness set", "objective", v, "cqs", item.set.String())
			}
		}
		for _, k := range bt.tuples.Keys() {
			support := bt.tuples.Support(k)
			push(support.Clone(), expand(support, cliqueSets))
		}
		comp += time.Since(began)
	}

	began := time.Now()
	var pick *ranked
	if witnesses != nil {
		rs := candidates(q, witnesses, Objective)
		pick, rs, err = s.best(ctx, q, bt, rs, bt.timedOut, Objective)
		if err != nil {
			return nil, err
		}
		logTop(rs, s.deps.TopTuples)
	}
	if pick == nil && bt.tuples.Len() > 0 {
		// Every exact witness turned out to be returned by all candidates.
		pick, _, err = s.best(ctx, q, bt, candidates(q, bt.tuples, Objective), bt.timedOut, Objective)
		if err != nil {
			return nil, err
		}
	}
	comp += time.Since(began)

	meta := bt.meta(q)
	meta.CompTime = comp
	return outcome(q, bt, pick, meta), nil
}

// expand adds every clique that strictly contains set.
func expand(set cq.IDSet, cliques []cq.IDSet) cq.IDSet {
	out := set.Clone()
	for _, c := range cliques {
		if set.ProperSubsetOf(c) {
			out = out.Union(c)
		}
	}
	return out
}

