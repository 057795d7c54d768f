package cq

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// IDSet is a set of CQ ids.
type IDSet map[int]struct{}

func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(ids ...int) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

func (s IDSet) Clone() IDSet {
	if s == nil {
		return IDSet{}
	}
	return maps.Clone(s)
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int {
	return slices.Sorted(maps.Keys(s))
}

// Key is a canonical string for use as a map key, e.g. "1,4,7".
func (s IDSet) Key() string {
	var b strings.Builder
	for i, id := range s.Sorted() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

func (s IDSet) String() string {
	return "{" + s.Key() + "}"
}

func (s IDSet) Equal(o IDSet) bool {
	return len(s) == len(o) && s.SubsetOf(o)
}

// SubsetOf reports s ⊆ o.
func (s IDSet) SubsetOf(o IDSet) bool {
	if len(s) > len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// ProperSubsetOf reports s ⊊ o.
func (s IDSet) ProperSubsetOf(o IDSet) bool {
	return len(s) < len(o) && s.SubsetOf(o)
}

func (s IDSet) Union(o IDSet) IDSet {
	out := s.Clone()
	for id := range o {
		out[id] = struct{}{}
	}
	return out
}

func (s IDSet) Intersect(o IDSet) IDSet {
	out := IDSet{}
	for id := range s {
		if o.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s IDSet) Minus(o IDSet) IDSet {
	out := IDSet{}
	for id := range s {
		if !o.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Without returns a copy of s lacking id.
func (s IDSet) Without(id int) IDSet {
	out := s.Clone()
	delete(out, id)
	return out
}
