// Package cq models candidate conjunctive queries, their output tuples and
// the per query execution state.
package cq

import (
	"errors"
	"slices"
	"strings"

	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// ErrShape is returned when a query's projections do not fit a tuple.
var ErrShape = errors.New("projection shape mismatch")

// Projection is one SELECT list item.
type Projection struct {
	Expr string          `json:"expr"`
	Type schema.AttrType `json:"type"`
	// Attr is nil for aggregates.
	Attr *schema.Attribute `json:"attr,omitempty"`
}

// Predicate is a WHERE conjunct such as ("=", ["m.year", "1999"]).
type Predicate struct {
	Op       string   `json:"op"`
	Operands []string `json:"operands"`
}

// CQ is an immutable candidate query. Its execution state lives in State.
type CQ struct {
	ID int `json:"id"`
	// Label is the id used by the task file.
	Label       string       `json:"label"`
	Text        string       `json:"text"`
	Projections []Projection `json:"projections"`
	Predicates  []Predicate  `json:"predicates"`
	From        string       `json:"from"`
	Where       string       `json:"where,omitempty"`
	Distinct    bool         `json:"distinct,omitempty"`
	Weight      float64      `json:"weight"`
}

// Types is the projection type signature.
func (q *CQ) Types() []schema.AttrType {
	out := make([]schema.AttrType, len(q.Projections))
	for i, p := range q.Projections {
		out[i] = p.Type
	}
	return out
}

// Signature renders the type signature, e.g. "(text,num)".
func (q *CQ) Signature() string {
	return Signature(q.Types())
}

func Signature(types []schema.AttrType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// HasAggregate reports whether any projection is an aggregate.
func (q *CQ) HasAggregate() bool {
	return slices.ContainsFunc(q.Projections, func(p Projection) bool { return p.Type == schema.TypeAggr })
}

// Accepts reports whether t could be an output row of q judging by arity,
// value types and the value range of each projected column. Aggregates
// accept any value.
func (q *CQ) Accepts(t Tuple) bool {
	if len(t) != len(q.Projections) {
		return false
	}
	for i, p := range q.Projections {
		switch p.Type {
		case schema.TypeNum:
			if !IsNumeric(t[i]) {
				return false
			}
			if p.Attr == nil {
				continue
			}
			if r := p.Attr.Range(); !r.IsEmpty() && !r.Contains(t[i]) {
				return false
			}
		case schema.TypeText:
			if _, ok := t[i].(string); !ok {
				return false
			}
		}
	}
	return true
}

// Set is a candidate set keyed by CQ id.
type Set map[int]*CQ

func NewSet(queries ...*CQ) Set {
	s := make(Set, len(queries))
	for _, q := range queries {
		s[q.ID] = q
	}
	return s
}

func (s Set) IDs() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s Set) SortedIDs() []int {
	return s.IDs().Sorted()
}

// Weight sums the weights of the given ids that belong to s.
func (s Set) Weight(ids IDSet) float64 {
	var w float64
	for id := range ids {
		if q, ok := s[id]; ok {
			w += q.Weight
		}
	}
	return w
}

// TotalWeight is the weight of the whole set.
func (s Set) TotalWeight() float64 {
	var w float64
	for _, q := range s {
		w += q.Weight
	}
	return w
}

// Subset returns the members of s whose id is in ids.
func (s Set) Subset(ids IDSet) Set {
	out := make(Set, len(ids))
	for id := range ids {
		if q, ok := s[id]; ok {
			out[id] = q
		}
	}
	return out
}
