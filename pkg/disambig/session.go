package disambig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// ErrInconsistentResult means the feedback loop converged on queries that
// are not the declared answers.
var ErrInconsistentResult = errors.New("feedback converged outside the answer set")

// DefaultMaxIterations bounds the rounds of a session.
const DefaultMaxIterations = 50

// Oracle answers whether the intended query returns the witness.
type Oracle interface {
	Confirm(ctx context.Context, witness cq.Tuple, support cq.IDSet) (bool, error)
}

// SimulatedOracle knows the intended queries. It confirms a witness iff one
// of them returns it.
type SimulatedOracle struct {
	Answers cq.IDSet
}

func (o SimulatedOracle) Confirm(_ context.Context, _ cq.Tuple, support cq.IDSet) (bool, error) {
	return support.Intersect(o.Answers).Len() > 0, nil
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, witness cq.Tuple, support cq.IDSet) (bool, error)

func (f OracleFunc) Confirm(ctx context.Context, witness cq.Tuple, support cq.IDSet) (bool, error) {
	return f(ctx, witness, support)
}

// RoundRecord is the trace of one feedback round.
type RoundRecord struct {
	Witness   cq.Tuple `json:"witness"`
	Support   []int    `json:"support"`
	Confirmed bool     `json:"confirmed"`
	Remaining int      `json:"remaining"`
	Meta      Meta     `json:"meta"`
}

// TaskResult is the outcome of a session. Iterations is nil when the task
// failed.
type TaskResult struct {
	Strategy   string        `json:"strategy"`
	Iterations *int          `json:"iterations"`
	Remaining  []int         `json:"remaining"`
	Rounds     []RoundRecord `json:"rounds"`
	Totals     Meta          `json:"totals"`
	Elapsed    time.Duration `json:"elapsed"`
	Reason     string        `json:"reason,omitempty"`
	// Failed lists the queries dropped before the first round because they
	// could not be executed.
	Failed []int `json:"failed,omitempty"`
}

func (r *TaskResult) Succeeded() bool { return r.Iterations != nil }

type Session struct {
	strategy      Strategy
	oracle        Oracle
	answers       cq.IDSet
	maxIterations int
}

type NewSessionParams struct {
	Strategy Strategy
	Oracle   Oracle
	// Answers is the set the loop must converge on.
	Answers       cq.IDSet
	MaxIterations int
}

func NewSession(params NewSessionParams) *Session {
	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Session{
		strategy:      params.Strategy,
		oracle:        params.Oracle,
		answers:       params.Answers,
		maxIterations: maxIterations,
	}
}

// Run narrows candidates round by round: a confirmed witness keeps only its
// supporting queries, a rejected one discards them. It stops once no more
// queries remain than there are answers, or fails when no witness can be
// found, every query is eliminated or the round limit is reached.
func (s *Session) Run(ctx context.Context, candidates cq.Set, states cq.States) (*TaskResult, error) {
	start := time.Now()
	res := &TaskResult{Strategy: s.strategy.Name()}
	q := candidates
	if states == nil {
		states = cq.States{}
	}

	fail := func(reason string) (*TaskResult, error) {
		res.Reason = reason
		res.Remaining = q.SortedIDs()
		res.Elapsed = time.Since(start)
		logger.Info("[Disambig] Task failed", "strategy", res.Strategy, "reason", reason, "rounds", len(res.Rounds))
		return res, nil
	}

	// Failed queries never return a tuple; their weight must not count in
	// any split.
	if failed := failedIDs(q, states); failed.Len() > 0 {
		logger.Info("[Disambig] Dropping failed queries", "cqs", failed.String())
		q = q.Subset(q.IDs().Minus(failed))
		states = states.Retain(q.IDs())
		res.Failed = failed.Sorted()
		res.Totals.ErrorCQ += failed.Len()
	}
	answers := s.answers.Intersect(q.IDs())
	if answers.Len() == 0 && s.answers.Len() > 0 {
		return fail("every intended query failed")
	}

	for len(q) > answers.Len() {
		if len(res.Rounds) >= s.maxIterations {
			return fail("iteration limit reached")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := s.strategy.Execute(ctx, Round{Candidates: q, States: states})
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", len(res.Rounds)+1, err)
		}
		res.Totals.Add(out.Meta)
		logger.Info("[Disambig] Round",
			"n", len(res.Rounds)+1, "total", out.Meta.TotalCQ, "executed", out.Meta.ExecCQ,
			"valid", out.Meta.ValidCQ, "timed_out", out.Meta.TimedOutCQ, "errors", out.Meta.ErrorCQ,
			"objective", out.Meta.Objective)

		all := q.IDs()
		if out.Witness == nil || out.Support.Len() == 0 || out.Support.Equal(all) {
			res.Rounds = append(res.Rounds, RoundRecord{Remaining: len(q), Meta: out.Meta})
			return fail("no witness found")
		}

		confirmed, err := s.oracle.Confirm(ctx, out.Witness, out.Support)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		keep := all.Minus(out.Support)
		if confirmed {
			keep = all.Intersect(out.Support)
		}
		q = q.Subset(keep)
		states = out.States.Retain(keep)

		res.Rounds = append(res.Rounds, RoundRecord{
			Witness:   out.Witness,
			Support:   out.Support.Sorted(),
			Confirmed: confirmed,
			Remaining: len(q),
			Meta:      out.Meta,
		})
		if len(q) == 0 {
			return fail("candidate set exhausted")
		}
	}

	res.Remaining = q.SortedIDs()
	res.Elapsed = time.Since(start)
	if !q.IDs().SubsetOf(answers) {
		return res, fmt.Errorf("%w: remaining %v, answers %v", ErrInconsistentResult, q.SortedIDs(), answers.Sorted())
	}
	n := len(res.Rounds)
	res.Iterations = &n
	logger.Info("[Disambig] Task done", "strategy", res.Strategy, "iterations", n, "elapsed", res.Elapsed)
	return res, nil
}

func failedIDs(q cq.Set, states cq.States) cq.IDSet {
	out := cq.NewIDSet()
	for id := range q {
		if states.Get(id).Status == cq.Failed {
			out.Add(id)
		}
	}
	return out
}
