package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// ErrEmptyAnswer is returned when the intended query has no result.
var ErrEmptyAnswer = errors.New("intended query returns no rows")

// Confusion is the task query confusion 1 - 1/Σ|CQ_i ∩ TQ|/|TQ| given the
// size of the intended query's result and how many of its tuples each
// candidate returns. The intended query counts itself. Values near 0 mean
// the candidates hardly overlap the intended result.
func Confusion(answerSize int, overlaps map[int]int) float64 {
	if answerSize <= 0 {
		return 0
	}
	denom := 0.0
	for _, n := range overlaps {
		denom += float64(n) / float64(answerSize)
	}
	if denom == 0 {
		return 0
	}
	return 1 - 1/denom
}

// TaskConfusion runs the intended query and every candidate of the same
// type signature and computes Confusion. Candidates that time out count as
// disjoint, other errors abort.
func TaskConfusion(ctx context.Context, conn db.Database, candidates cq.Set, answer int) (float64, error) {
	tq, ok := candidates[answer]
	if !ok {
		return 0, fmt.Errorf("answer %d is not a candidate", answer)
	}
	if len(candidates) == 1 {
		return 0, nil
	}

	rows, err := conn.Query(ctx, tq.Text)
	if err != nil {
		return 0, fmt.Errorf("failed to run intended query: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrEmptyAnswer
	}
	want := make(map[cq.TupleKey]struct{}, len(rows))
	for _, t := range rows {
		want[t.Key()] = struct{}{}
	}

	overlaps := map[int]int{answer: len(want)}
	for _, id := range candidates.SortedIDs() {
		q := candidates[id]
		if id == answer || q.Signature() != tq.Signature() {
			continue
		}
		got, err := conn.Query(ctx, q.Text)
		if err != nil {
			if errors.Is(err, db.ErrTimeout) {
				logger.Debug("[Analysis] Candidate timed out", "cq", id)
				overlaps[id] = 0
				continue
			}
			return 0, fmt.Errorf("failed to run candidate %d: %w", id, err)
		}
		n := 0
		for _, t := range got {
			if _, ok := want[t.Key()]; ok {
				n++
			}
		}
		overlaps[id] = n
	}
	return Confusion(len(want), overlaps), nil
}
