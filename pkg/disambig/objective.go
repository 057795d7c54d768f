package disambig

import (
	"math"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

// DefaultBoundLimit is the largest set the bound recursion descends into.
const DefaultBoundLimit = 15

func split(q cq.Set, s cq.IDSet) (in, out float64) {
	for id, c := range q {
		if s.Has(id) {
			in += c.Weight
		} else {
			out += c.Weight
		}
	}
	return in, out
}

// Objective is the weighted imbalance |w(S) - w(Q\S)|. Ids of S outside Q
// are ignored. Lower is better.
func Objective(q cq.Set, s cq.IDSet) float64 {
	in, out := split(q, s)
	return math.Abs(in - out)
}

// Dist is the unweighted distinguishing measure (|Q|-|S|)p + |S|(1-p) with
// p = |S|/|Q|. It is largest for the most even splits.
func Dist(q cq.Set, s cq.IDSet) float64 {
	if len(q) == 0 {
		return 0
	}
	n := float64(len(q))
	k := 0.0
	for id := range s {
		if _, ok := q[id]; ok {
			k++
		}
	}
	p := k / n
	return (n-k)*p + k*(1-p)
}

// Entropy is the binary entropy of the answer to "does the intended query
// return this tuple" when queries are picked by weight.
func Entropy(q cq.Set, s cq.IDSet) float64 {
	in, out := split(q, s)
	total := in + out
	if total == 0 {
		return 0
	}
	p := in / total
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// Bounder computes lower bounds on the objective reachable by any subset
// of a set. It memoises per candidate set and is not safe for concurrent use.
type Bounder struct {
	q     cq.Set
	limit int
	memo  map[string]float64
}

func NewBounder(q cq.Set, limit int) *Bounder {
	if limit <= 0 {
		limit = DefaultBoundLimit
	}
	return &Bounder{q: q, limit: limit, memo: make(map[string]float64)}
}

// Bound returns a lower bound on Objective(Q, T) for every T ⊆ S. If S is
// no heavier than its complement the bound is exact for S and every subset
// is worse. Otherwise the bound recurses into the subsets one smaller. Sets
// larger than the limit get 0, so branch and bound over them is no longer
// provably optimal.
func (b *Bounder) Bound(s cq.IDSet) float64 {
	key := s.Key()
	if v, ok := b.memo[key]; ok {
		return v
	}
	in, out := split(b.q, s)
	if out >= in {
		b.memo[key] = out - in
		return out - in
	}
	if s.Len() > b.limit {
		return 0
	}

	best := in - out
	for id := range s {
		best = math.Min(best, b.Bound(s.Without(id)))
	}
	b.memo[key] = best
	return best
}
