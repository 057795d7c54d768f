package disambig

import (
	"context"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// exhaustive runs every candidate and picks the tuple with the largest
// unweighted distinguishing measure.
type exhaustive struct {
	*base
}

func (s *exhaustive) Name() string { return NameExhaustive }

func (s *exhaustive) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	bt := newBatch(round.States)
	if err := s.run(ctx, bt, q, nil); err != nil {
		return nil, err
	}

	start := time.Now()
	rs := candidates(q, bt.tuples, negDist)
	pick, rs, err := s.best(ctx, q, bt, rs, bt.timedOut, negDist)
	if err != nil {
		return nil, err
	}
	logTop(rs, s.deps.TopTuples)

	meta := bt.meta(q)
	meta.CompTime = time.Since(start)
	return outcome(q, bt, pick, meta), nil
}

func negDist(q cq.Set, s cq.IDSet) float64 { return -Dist(q, s) }

// greedyAll runs every candidate and picks the tuple with the smallest
// objective. When timeouts leave it without an informative tuple it runs
// the round again, which continues incremental fetching where the last run
// stopped.
type greedyAll struct {
	*base
}

func (s *greedyAll) Name() string { return NameGreedyAll }

func (s *greedyAll) Execute(ctx context.Context, round Round) (*Outcome, error) {
	q := round.Candidates
	states := round.States
	var total Meta

	for attempt := 0; ; attempt++ {
		bt := newBatch(states)
		if err := s.run(ctx, bt, q, nil); err != nil {
			return nil, err
		}

		start := time.Now()
		rs := candidates(q, bt.tuples, Objective)
		pick, rs, err := s.best(ctx, q, bt, rs, bt.timedOut, Objective)
		if err != nil {
			return nil, err
		}
		logTop(rs, s.deps.TopTuples)

		// counts and times add up over attempts
		meta := bt.meta(q)
		meta.CompTime = time.Since(start)
		total.Add(meta)
		total.TotalCQ = len(q)
		total.Reruns = attempt

		if pick != nil || bt.timedOut.Len() == 0 || attempt >= s.deps.MaxReruns {
			return outcome(q, bt, pick, total), nil
		}
		logger.Debug("[Disambig] No informative tuple, rerunning", "attempt", attempt+1, "timed_out", bt.timedOut.Len())
		states = bt.states
	}
}
