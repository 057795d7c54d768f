// Package db is the contract between the disambiguation engine and a
// relational engine. Connectors live in the sub packages.
package db

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// ErrTimeout is returned (wrapped) when a statement exceeds the engine's
// execution ceiling. It is recoverable.
var ErrTimeout = errors.New("statement timed out")

// Database is one connection (or pool) to the database the candidate queries
// are written against.
type Database interface {
	schema.Introspector
	cq.Dialect

	Name() string

	// Query runs a statement and returns its NULL free distinct rows.
	Query(ctx context.Context, sql string, args ...any) ([]cq.Tuple, error)
	// QueryRow returns the first row. ok is false when there is none.
	QueryRow(ctx context.Context, sql string, args ...any) (row cq.Tuple, ok bool, err error)
	// Exists reports whether the statement returns at least one row.
	Exists(ctx context.Context, sql string, args ...any) (bool, error)
	// Explain returns a scalar cost proxy for the statement.
	Explain(ctx context.Context, sql string) (float64, error)
	// DistinctIntersect returns the distinct non-NULL values two text
	// attributes share.
	DistinctIntersect(ctx context.Context, a, b *schema.Attribute) ([]string, error)

	Close() error
}

// Normalize converts a driver value to the tuple value domain. ok is false
// for NULL.
func Normalize(v any) (value any, ok bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case int64, float64, string, bool:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x <= 1<<63-1 {
			return int64(x), true
		}
		return float64(x), true
	case float32:
		return float64(x), true
	case []byte:
		return string(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	case *big.Int:
		if x == nil {
			return nil, false
		}
		if x.IsInt64() {
			return x.Int64(), true
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// NormalizeRow converts a driver row. ok is false if any value is NULL.
func NormalizeRow(values []any) (cq.Tuple, bool) {
	t := make(cq.Tuple, len(values))
	for i, v := range values {
		nv, ok := Normalize(v)
		if !ok {
			return nil, false
		}
		t[i] = nv
	}
	return t, true
}

// Rows collects normalised distinct rows, dropping any row containing NULL.
type Rows struct {
	seen   map[cq.TupleKey]struct{}
	tuples []cq.Tuple
	nulls  int
}

func NewRows() *Rows {
	return &Rows{seen: make(map[cq.TupleKey]struct{})}
}

func (r *Rows) Add(values []any) {
	t, ok := NormalizeRow(values)
	if !ok {
		r.nulls++
		return
	}
	k := t.Key()
	if _, dup := r.seen[k]; dup {
		return
	}
	r.seen[k] = struct{}{}
	r.tuples = append(r.tuples, t)
}

func (r *Rows) Tuples() []cq.Tuple { return r.tuples }

// Skipped is the number of rows dropped for containing NULL.
func (r *Rows) Skipped() int { return r.nulls }

// TempTableName is the name of the per attribute distinct value table used
// for text intersections.
func TempTableName(a *schema.Attribute) string {
	return fmt.Sprintf("litmus_distinct_%s_%s", a.Relation, a.Name)
}
