// Package sqldb implements the parts of db.Database shared by the
// database/sql based connectors.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Base runs statements over a *sql.DB.
type Base struct {
	DB *sql.DB
	// Timeout, when set, bounds each statement with a context deadline. Use
	// it for engines without a server side execution ceiling.
	Timeout time.Duration
	// IsTimeout recognises the engine's own timeout errors.
	IsTimeout func(error) bool
	// QuoteIdent quotes a table or column name.
	QuoteIdent func(string) string
}

func (b *Base) stmtContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.Timeout)
}

// Classify maps engine errors onto db.ErrTimeout.
func (b *Base) Classify(parent, stmt context.Context, err error) error {
	if err == nil {
		return nil
	}
	if b.IsTimeout != nil && b.IsTimeout(err) {
		return fmt.Errorf("%w: %v", db.ErrTimeout, err)
	}
	if parent.Err() == nil && errors.Is(stmt.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", db.ErrTimeout, err)
	}
	return err
}

func (b *Base) Query(ctx context.Context, query string, args ...any) ([]cq.Tuple, error) {
	stmtCtx, cancel := b.stmtContext(ctx)
	defer cancel()

	rows, err := b.DB.QueryContext(stmtCtx, query, args...)
	if err != nil {
		return nil, b.Classify(ctx, stmtCtx, err)
	}
	defer rows.Close()

	out := db.NewRows()
	if err := Scan(rows, out, 0); err != nil {
		return nil, b.Classify(ctx, stmtCtx, err)
	}
	return out.Tuples(), nil
}

func (b *Base) QueryRow(ctx context.Context, query string, args ...any) (cq.Tuple, bool, error) {
	stmtCtx, cancel := b.stmtContext(ctx)
	defer cancel()

	rows, err := b.DB.QueryContext(stmtCtx, query, args...)
	if err != nil {
		return nil, false, b.Classify(ctx, stmtCtx, err)
	}
	defer rows.Close()

	out := db.NewRows()
	if err := Scan(rows, out, 1); err != nil {
		return nil, false, b.Classify(ctx, stmtCtx, err)
	}
	if out.Skipped() > 0 {
		// The row exists but contains NULL.
		return nil, true, nil
	}
	if len(out.Tuples()) == 0 {
		return nil, false, nil
	}
	return out.Tuples()[0], true, nil
}

func (b *Base) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	stmtCtx, cancel := b.stmtContext(ctx)
	defer cancel()

	rows, err := b.DB.QueryContext(stmtCtx, query, args...)
	if err != nil {
		return false, b.Classify(ctx, stmtCtx, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, b.Classify(ctx, stmtCtx, err)
	}
	return found, nil
}

func (b *Base) MinMax(ctx context.Context, table, column string) (*float64, *float64, error) {
	col := b.QuoteIdent(column)
	query := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, b.QuoteIdent(table))

	var lo, hi sql.NullFloat64
	if err := b.DB.QueryRowContext(ctx, query).Scan(&lo, &hi); err != nil {
		return nil, nil, fmt.Errorf("failed to read min/max: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return nil, nil, nil
	}
	return &lo.Float64, &hi.Float64, nil
}

func (b *Base) Close() error {
	return b.DB.Close()
}

// Scan reads rows into out. limit <= 0 reads everything. Text encoded
// numbers of numeric columns are converted so that every engine produces
// the same tuple values.
func Scan(rows *sql.Rows, out *db.Rows, limit int) error {
	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	numeric := make([]bool, len(types))
	for i, ct := range types {
		numeric[i] = schema.ClassifyColumnType(ct.DatabaseTypeName()) == schema.TypeNum
	}

	read := 0
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			if numeric[i] {
				values[i] = parseNumber(v)
			}
		}
		out.Add(values)
		read++
		if limit > 0 && read >= limit {
			break
		}
	}
	return rows.Err()
}

func parseNumber(v any) any {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return v
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
