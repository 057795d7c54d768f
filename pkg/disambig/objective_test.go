package disambig

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

func weighted(ws ...float64) cq.Set {
	s := cq.Set{}
	for i, w := range ws {
		s[i] = &cq.CQ{ID: i, Weight: w}
	}
	return s
}

func TestObjective(t *testing.T) {
	q := weighted(3, 2, 1)

	assert.Equal(t, 4.0, Objective(q, cq.NewIDSet(0, 1)))
	assert.Equal(t, 4.0, Objective(q, cq.NewIDSet(2)))
	assert.Equal(t, 0.0, Objective(q, cq.NewIDSet(1, 2)))
	assert.Equal(t, 6.0, Objective(q, cq.NewIDSet(0, 1, 2)))
	// ids outside Q do not count
	assert.Equal(t, 0.0, Objective(q, cq.NewIDSet(1, 2, 9)))
}

func TestObjectiveSymmetric(t *testing.T) {
	q := weighted(5, 1, 1, 2, 4)
	all := q.IDs()
	for _, s := range []cq.IDSet{cq.NewIDSet(0), cq.NewIDSet(1, 3), cq.NewIDSet(0, 2, 4)} {
		assert.Equal(t, Objective(q, s), Objective(q, all.Minus(s)), s.String())
	}
}

func TestDist(t *testing.T) {
	q := weighted(1, 1, 1, 1)

	assert.Equal(t, 0.0, Dist(q, cq.NewIDSet()))
	assert.Equal(t, 2.0, Dist(q, cq.NewIDSet(0, 1)))
	assert.Equal(t, 1.5, Dist(q, cq.NewIDSet(0)))
	assert.Equal(t, 0.0, Dist(q, q.IDs()))
	assert.Equal(t, 0.0, Dist(cq.Set{}, cq.NewIDSet(1)))
}

func TestEntropy(t *testing.T) {
	q := weighted(1, 1, 2)

	assert.InDelta(t, 1.0, Entropy(q, cq.NewIDSet(2)), 1e-9)
	assert.Zero(t, Entropy(q, q.IDs()))
	assert.Zero(t, Entropy(q, cq.NewIDSet()))
	assert.InDelta(t, -(0.25*math.Log2(0.25) + 0.75*math.Log2(0.75)), Entropy(q, cq.NewIDSet(0)), 1e-9)
}

func TestBoundIsLowerBound(t *testing.T) {
	q := weighted(3, 2, 1, 4, 2)
	b := NewBounder(q, DefaultBoundLimit)
	s := cq.NewIDSet(0, 1, 2, 3)

	bound := b.Bound(s)
	best := math.Inf(1)
	ids := s.Sorted()
	for mask := 1; mask < 1<<len(ids); mask++ {
		sub := cq.NewIDSet()
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				sub.Add(id)
			}
		}
		best = math.Min(best, Objective(q, sub))
	}
	assert.LessOrEqual(t, bound, best)
	assert.Equal(t, best, bound)
}

func TestBoundLightSetIsExact(t *testing.T) {
	q := weighted(3, 2, 1)
	b := NewBounder(q, DefaultBoundLimit)

	assert.Equal(t, 4.0, b.Bound(cq.NewIDSet(2)))
	assert.Equal(t, 0.0, b.Bound(cq.NewIDSet(1, 2)))
}

func TestBoundPastLimit(t *testing.T) {
	q := weighted(5, 1, 1, 1)
	b := NewBounder(q, 2)

	assert.Zero(t, b.Bound(cq.NewIDSet(0, 1, 2)))
}
