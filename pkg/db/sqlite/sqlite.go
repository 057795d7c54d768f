// Package sqlite connects the engine to SQLite files through go-sqlite3.
// SQLite has no server side execution ceiling, so statements are bounded
// with a context deadline.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/db/sqldb"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

const (
	// scanCost and searchCost weigh full scans and index lookups in the
	// plan heuristic.
	scanCost   = 1000.0
	searchCost = 10.0
)

type Database struct {
	sqldb.Base
	name string
}

type OpenParams struct {
	// Path is a database file or ":memory:".
	Path             string
	StatementTimeout time.Duration
}

func Open(ctx context.Context, params OpenParams) (*Database, error) {
	conn, err := sql.Open("sqlite3", params.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Temp tables and in-memory databases are per connection.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach sqlite: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(params.Path), filepath.Ext(params.Path))
	logger.Debug("[SQLite] Opened", "path", params.Path)
	return &Database{
		name: name,
		Base: sqldb.Base{
			DB:         conn,
			Timeout:    params.StatementTimeout,
			IsTimeout:  isInterrupt,
			QuoteIdent: quoteIdent,
		},
	}, nil
}

func isInterrupt(err error) bool {
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrInterrupt
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (d *Database) Name() string { return d.name }

func (d *Database) Placeholder(int) string { return "?" }

func (d *Database) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Exec runs a statement that returns no rows. It is used to seed fixtures.
func (d *Database) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.DB.ExecContext(ctx, query, args...)
	return err
}

func (d *Database) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *Database) DescribeColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := d.DB.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			def              sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, schema.Column{Name: name, Type: typ, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

// Explain scores the query plan: every full scan multiplies the cost by
// scanCost and every index search by searchCost.
func (d *Database) Explain(ctx context.Context, query string) (float64, error) {
	rows, err := d.DB.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
	if err != nil {
		return 0, fmt.Errorf("failed to explain: %w", err)
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var id, parent, unused int
		var detail string
		if err := rows.Scan(&id, &parent, &unused, &detail); err != nil {
			return 0, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return planCost(details), nil
}

func planCost(details []string) float64 {
	cost := 1.0
	for _, detail := range details {
		switch {
		case strings.HasPrefix(detail, "SCAN"):
			cost *= scanCost
		case strings.HasPrefix(detail, "SEARCH"):
			cost *= searchCost
		}
	}
	return cost
}

func (d *Database) DistinctIntersect(ctx context.Context, a, b *schema.Attribute) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL INTERSECT SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL ORDER BY 1",
		quoteIdent(a.Name), quoteIdent(a.Relation), quoteIdent(a.Name),
		quoteIdent(b.Name), quoteIdent(b.Relation), quoteIdent(b.Name))

	stmtCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		stmtCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	rows, err := d.DB.QueryContext(stmtCtx, query)
	if err != nil {
		return nil, d.Classify(ctx, stmtCtx, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, d.Classify(ctx, stmtCtx, err)
	}
	return values, nil
}

var _ db.Database = (*Database)(nil)
