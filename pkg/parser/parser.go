// Package parser extracts projections, predicates and the FROM/WHERE
// fragments of select-project-join queries.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/umich-dbgroup/litmus/pkg/cq"

	pgparser "github.com/auxten/postgresql-parser/pkg/sql/parser"
	"github.com/auxten/postgresql-parser/pkg/sql/sem/tree"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupported marks statements outside the select-project-join fragment.
var ErrUnsupported = errors.New("unsupported statement")

// Projection is a SELECT list item as written.
type Projection struct {
	Expr      string
	Aggregate bool
}

// Result is the parsed shape of one query.
type Result struct {
	Projections []Projection
	Predicates  []cq.Predicate
	From        string
	Where       string
	Distinct    bool
	// Aliases maps FROM clause aliases (and bare table names) to tables.
	Aliases map[string]string
}

// Parser turns query text into a Result.
type Parser interface {
	Parse(sql string) (*Result, error)
}

var aggregates = map[string]bool{
	"COUNT": true,
	"SUM":   true,
	"AVG":   true,
	"MIN":   true,
	"MAX":   true,
}

// PostgresParser parses with the CockroachDB derived Postgres grammar.
type PostgresParser struct{}

func (PostgresParser) Parse(sql string) (*Result, error) {
	stmts, err := pgparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("%w: expected one statement, got %d", ErrUnsupported, len(stmts))
	}

	sel, ok := stmts[0].AST.(*tree.Select)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, stmts[0].AST.StatementTag())
	}
	if sel.With != nil || len(sel.OrderBy) > 0 || sel.Limit != nil {
		return nil, fmt.Errorf("%w: WITH, ORDER BY and LIMIT are not supported", ErrUnsupported)
	}

	clause, err := selectClause(sel.Select)
	if err != nil {
		return nil, err
	}
	if len(clause.GroupBy) > 0 || clause.Having != nil {
		return nil, fmt.Errorf("%w: GROUP BY and HAVING are not supported", ErrUnsupported)
	}

	res := &Result{Distinct: clause.Distinct, Aliases: make(map[string]string)}
	for _, se := range clause.Exprs {
		p, err := projection(se.Expr)
		if err != nil {
			return nil, err
		}
		res.Projections = append(res.Projections, p)
	}
	if len(res.Projections) == 0 {
		return nil, fmt.Errorf("%w: empty select list", ErrUnsupported)
	}

	tables := make([]string, 0, len(clause.From.Tables))
	for _, te := range clause.From.Tables {
		collectAliases(te, res.Aliases)
		tables = append(tables, tree.AsString(te))
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: missing FROM clause", ErrUnsupported)
	}
	res.From = strings.Join(tables, ", ")

	if clause.Where != nil && clause.Where.Expr != nil {
		res.Where = tree.AsString(clause.Where.Expr)
		res.Predicates = predicates(clause.Where.Expr, nil)
	}
	return res, nil
}

func selectClause(stmt tree.SelectStatement) (*tree.SelectClause, error) {
	switch s := stmt.(type) {
	case *tree.SelectClause:
		return s, nil
	case *tree.ParenSelect:
		if s.Select == nil {
			break
		}
		if len(s.Select.OrderBy) > 0 || s.Select.Limit != nil {
			return nil, fmt.Errorf("%w: ORDER BY and LIMIT are not supported", ErrUnsupported)
		}
		return selectClause(s.Select.Select)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, stmt)
}

func projection(expr tree.Expr) (Projection, error) {
	switch e := expr.(type) {
	case *tree.UnresolvedName:
		if e.Star {
			return Projection{}, fmt.Errorf("%w: star projections", ErrUnsupported)
		}
		return Projection{Expr: tree.AsString(e)}, nil
	case *tree.FuncExpr:
		if aggregates[strings.ToUpper(e.Func.String())] {
			return Projection{Expr: tree.AsString(e), Aggregate: true}, nil
		}
	case *tree.ParenExpr:
		return projection(e.Expr)
	}
	return Projection{}, fmt.Errorf("%w: projection %s", ErrUnsupported, tree.AsString(expr))
}

func collectAliases(te tree.TableExpr, aliases map[string]string) {
	switch t := te.(type) {
	case *tree.AliasedTableExpr:
		table := strings.Trim(tree.AsString(t.Expr), `"`)
		alias := string(t.As.Alias)
		if alias == "" {
			alias = table
		}
		aliases[alias] = table
	case *tree.JoinTableExpr:
		collectAliases(t.Left, aliases)
		collectAliases(t.Right, aliases)
	case *tree.ParenTableExpr:
		collectAliases(t.Expr, aliases)
	}
}

func predicates(expr tree.Expr, acc []cq.Predicate) []cq.Predicate {
	switch e := expr.(type) {
	case *tree.AndExpr:
		acc = predicates(e.Left, acc)
		return predicates(e.Right, acc)
	case *tree.ParenExpr:
		return predicates(e.Expr, acc)
	case *tree.ComparisonExpr:
		return append(acc, cq.Predicate{
			Op:       e.Operator.String(),
			Operands: []string{tree.AsString(e.Left), tree.AsString(e.Right)},
		})
	default:
		return append(acc, cq.Predicate{Op: "expr", Operands: []string{tree.AsString(expr)}})
	}
}

// Cache memoises a Parser by query text. Concurrent requests for the same
// text share one parse.
type Cache struct {
	inner Parser
	group singleflight.Group

	mu      sync.RWMutex
	results map[string]*Result
	errs    map[string]error
}

func NewCache(inner Parser) *Cache {
	return &Cache{
		inner:   inner,
		results: make(map[string]*Result),
		errs:    make(map[string]error),
	}
}

func (c *Cache) Parse(sql string) (*Result, error) {
	c.mu.RLock()
	res, ok := c.results[sql]
	err, failed := c.errs[sql]
	c.mu.RUnlock()
	if ok {
		return res, nil
	}
	if failed {
		return nil, err
	}

	v, err, _ := c.group.Do(sql, func() (any, error) {
		res, err := c.inner.Parse(sql)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.errs[sql] = err
			return nil, err
		}
		c.results[sql] = res
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Len is the number of cached entries, successful or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results) + len(c.errs)
}
