package parser

import (
	"fmt"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

type NewCQParams struct {
	ID     int
	Label  string
	Text   string
	Weight float64
	Parsed *Result
	Schema *schema.Schema
}

// NewCQ binds a parsed query to the schema. Every non aggregate projection
// must resolve to an attribute.
func NewCQ(params NewCQParams) (*cq.CQ, error) {
	res := params.Parsed
	q := &cq.CQ{
		ID:          params.ID,
		Label:       params.Label,
		Text:        params.Text,
		Weight:      params.Weight,
		Predicates:  res.Predicates,
		From:        res.From,
		Where:       res.Where,
		Distinct:    res.Distinct,
		Projections: make([]cq.Projection, len(res.Projections)),
	}
	for i, p := range res.Projections {
		if p.Aggregate {
			q.Projections[i] = cq.Projection{Expr: p.Expr, Type: schema.TypeAggr}
			continue
		}
		attr, err := params.Schema.Lookup(p.Expr, res.Aliases)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve projection %q: %w", p.Expr, err)
		}
		q.Projections[i] = cq.Projection{Expr: p.Expr, Type: attr.Type, Attr: attr}
	}
	return q, nil
}
