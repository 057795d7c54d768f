package cq

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Dialect renders engine specific SQL fragments.
type Dialect interface {
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	// QuoteString renders a string literal.
	QuoteString(s string) string
}

// Constraint narrows the values a projection may take.
type Constraint struct {
	Pos       int              `json:"pos"`
	Intersect schema.Intersect `json:"intersect"`
}

// ContextKey identifies a set of constraints. No constraints is "".
func ContextKey(cons []Constraint) string {
	if len(cons) == 0 {
		return ""
	}
	h := sha256.New()
	for _, c := range cons {
		fmt.Fprintf(h, "%d:", c.Pos)
		switch c.Intersect.Kind() {
		case schema.KindNum:
			lo, hi, _ := c.Intersect.Bounds()
			fmt.Fprintf(h, "num[%g,%g]", lo, hi)
		case schema.KindText:
			for _, v := range c.Intersect.Values() {
				fmt.Fprintf(h, "%d:%s,", len(v), v)
			}
		default:
			h.Write([]byte(c.Intersect.String()))
		}
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SQL returns the statement to execute under cons. Without constraints the
// original text is used unchanged.
func (q *CQ) SQL(cons []Constraint, d Dialect) string {
	preds := q.constraintPredicates(cons, d)
	if len(preds) == 0 {
		return q.Text
	}
	return q.selectSQL(q.selectList(), preds, "")
}

// RowAtSQL fetches the single row at offset of the statement under cons.
func (q *CQ) RowAtSQL(cons []Constraint, d Dialect, offset int) string {
	return q.selectSQL(q.selectList(), q.constraintPredicates(cons, d), fmt.Sprintf(" LIMIT 1 OFFSET %d", offset))
}

// ProbeSQL checks whether t is an output row of q without materialising the
// result. Aggregate queries cannot be probed this way.
func (q *CQ) ProbeSQL(t Tuple, d Dialect) (string, []any, error) {
	if len(t) != len(q.Projections) {
		return "", nil, fmt.Errorf("%w: cq %d has %d projections, tuple has %d values", ErrShape, q.ID, len(q.Projections), len(t))
	}
	if q.HasAggregate() {
		return "", nil, fmt.Errorf("%w: cq %d projects an aggregate", ErrShape, q.ID)
	}

	preds := make([]string, len(q.Projections))
	args := make([]any, len(q.Projections))
	for i, p := range q.Projections {
		preds[i] = fmt.Sprintf("%s = %s", p.Expr, d.Placeholder(i+1))
		args[i] = t[i]
	}
	return q.selectSQL("1", preds, " LIMIT 1"), args, nil
}

func (q *CQ) selectList() string {
	exprs := make([]string, len(q.Projections))
	for i, p := range q.Projections {
		exprs[i] = p.Expr
	}
	list := strings.Join(exprs, ", ")
	if q.Distinct {
		list = "DISTINCT " + list
	}
	return list
}

func (q *CQ) selectSQL(list string, extra []string, suffix string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(list)
	b.WriteString(" FROM ")
	b.WriteString(q.From)

	var conds []string
	if q.Where != "" {
		conds = append(conds, "("+q.Where+")")
	}
	conds = append(conds, extra...)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(suffix)
	return b.String()
}

func (q *CQ) constraintPredicates(cons []Constraint, d Dialect) []string {
	var preds []string
	for _, c := range cons {
		if c.Pos < 0 || c.Pos >= len(q.Projections) {
			continue
		}
		expr := q.Projections[c.Pos].Expr
		in := c.Intersect
		switch in.Kind() {
		case schema.KindNum:
			lo, hi, _ := in.Bounds()
			preds = append(preds, fmt.Sprintf("(%s >= %s AND %s <= %s)", expr, formatFloat(lo), expr, formatFloat(hi)))
		case schema.KindText:
			vals := in.Values()
			quoted := make([]string, len(vals))
			for i, v := range vals {
				quoted[i] = d.QuoteString(v)
			}
			preds = append(preds, fmt.Sprintf("(%s IN (%s))", expr, strings.Join(quoted, ", ")))
		case schema.KindEmpty:
			preds = append(preds, "(1 = 0)")
		}
	}
	return preds
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
