package analysis

import (
	"cmp"
	"slices"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

// SupportCount is how many distinct tuples exactly one support set shares.
type SupportCount struct {
	Support []int `json:"support"`
	Tuples  int   `json:"tuples"`
}

// OverlapStats describes how the candidates' results overlap.
type OverlapStats struct {
	Tuples int `json:"tuples"`
	// PerCQ is the number of distinct tuples each CQ returned.
	PerCQ map[int]int    `json:"per_cq"`
	Top   []SupportCount `json:"top"`
}

// Overlap groups tuples by support and keeps the top most common support
// sets, ties in discovery order.
func Overlap(tuples *cq.TupleMap, top int) OverlapStats {
	out := OverlapStats{Tuples: tuples.Len(), PerCQ: map[int]int{}}
	index := map[string]int{}
	var groups []SupportCount

	for _, k := range tuples.Keys() {
		s := tuples.Support(k)
		for id := range s {
			out.PerCQ[id]++
		}
		key := s.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, SupportCount{Support: s.Sorted()})
		}
		groups[i].Tuples++
	}

	slices.SortStableFunc(groups, func(a, b SupportCount) int { return cmp.Compare(b.Tuples, a.Tuples) })
	if top > 0 && len(groups) > top {
		groups = groups[:top]
	}
	out.Top = groups
	return out
}
