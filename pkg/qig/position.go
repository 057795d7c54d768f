package qig

import (
	"errors"
	"fmt"
	"slices"

	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// posPart is a group of queries whose attributes at one position pairwise
// intersect.
type posPart struct {
	ids cq.IDSet
	in  schema.Intersect
}

type draft struct {
	ids cq.IDSet
	in  []schema.Intersect
}

// PartitionByRange partitions cqs without building the query graph. Queries
// are grouped by type signature; every position then splits its group by
// the maximal cliques of the attributes used there, and the splits of all
// positions are intersected. Only maximal groups are kept. Unlike the
// cliques of a range mode graph, members of a part need not intersect
// pairwise across all positions at once.
func PartitionByRange(cqs cq.Set, attrs *aig.Graph) (*PartSet, error) {
	if attrs == nil {
		return nil, errors.New("position partitioning requires an attribute intersection graph")
	}
	return partitionByRange(cqs, attrs), nil
}

func partitionByRange(cqs cq.Set, attrs *aig.Graph) *PartSet {
	bySignature := make(map[string][]int)
	var signatures []string
	for _, id := range cqs.SortedIDs() {
		sig := cqs[id].Signature()
		if _, ok := bySignature[sig]; !ok {
			signatures = append(signatures, sig)
		}
		bySignature[sig] = append(bySignature[sig], id)
	}

	ps := &PartSet{byKey: make(map[string]*Part)}
	for _, sig := range signatures {
		ids := bySignature[sig]
		types := cqs[ids[0]].Types()

		drafts := []draft{{ids: cq.NewIDSet(ids...), in: make([]schema.Intersect, len(types))}}
		for pos, typ := range types {
			splits := positionParts(cqs, ids, pos, typ, attrs)
			var next []draft
			for _, d := range drafts {
				for _, s := range splits {
					common := d.ids.Intersect(s.ids)
					if common.Len() == 0 {
						continue
					}
					in := slices.Clone(d.in)
					in[pos] = s.in
					next = append(next, draft{ids: common, in: in})
				}
			}
			drafts = maximalDrafts(next)
		}

		for i, d := range drafts {
			key := fmt.Sprintf("%s/%d", sig, i)
			p := &Part{Key: key, IDs: d.ids, Types: slices.Clone(types), Intersects: d.in}
			ps.Parts = append(ps.Parts, p)
			ps.byKey[key] = p
		}
	}
	return ps
}

func positionParts(cqs cq.Set, ids []int, pos int, typ schema.AttrType, attrs *aig.Graph) []posPart {
	byAttr := make(map[schema.AttrKey][]int)
	var members []*schema.Attribute
	var unresolved []int
	for _, id := range ids {
		a := cqs[id].Projections[pos].Attr
		if typ == schema.TypeAggr || a == nil {
			unresolved = append(unresolved, id)
			continue
		}
		if _, ok := byAttr[a.Key()]; !ok {
			members = append(members, a)
		}
		byAttr[a.Key()] = append(byAttr[a.Key()], id)
	}

	var out []posPart
	if len(unresolved) > 0 {
		out = append(out, posPart{ids: cq.NewIDSet(unresolved...), in: schema.All(typ)})
	}
	for _, c := range attrs.FindMaximalCliques(members) {
		p := posPart{ids: cq.NewIDSet(), in: attrs.CliqueIntersect(c)}
		for _, a := range c {
			p.ids.Add(byAttr[a.Key()]...)
		}
		if len(c) == 1 && p.in.IsEmpty() {
			p.in = schema.All(typ)
		}
		out = append(out, p)
	}
	return out
}

// maximalDrafts drops groups contained in another group. Equal groups keep
// the first.
func maximalDrafts(ds []draft) []draft {
	var out []draft
	for i, d := range ds {
		maximal := true
		for j, o := range ds {
			if i == j {
				continue
			}
			if d.ids.ProperSubsetOf(o.ids) || (j < i && d.ids.Equal(o.ids)) {
				maximal = false
				break
			}
		}
		if maximal {
			out = append(out, d)
		}
	}
	return out
}
