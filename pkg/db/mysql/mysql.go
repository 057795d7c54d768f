// Package mysql connects the engine to MySQL through go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/umich-dbgroup/litmus/internal/util"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/db/sqldb"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

const (
	// errExecutionTimeout is ER_QUERY_TIMEOUT, raised by max_execution_time.
	errExecutionTimeout = 3024
	// errQueryInterrupted is ER_QUERY_INTERRUPTED.
	errQueryInterrupted = 1317
)

type Database struct {
	sqldb.Base
	name string
}

type OpenParams struct {
	DSN string
	// Database overrides the schema named in DSN.
	Database         string
	StatementTimeout time.Duration
	MaxOpenConns     int
}

// Open connects with max_execution_time applied to every session.
func Open(ctx context.Context, params OpenParams) (*Database, error) {
	cfg, err := driver.ParseDSN(params.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	if params.Database != "" {
		cfg.DBName = params.Database
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	if params.StatementTimeout > 0 {
		cfg.Params["max_execution_time"] = strconv.FormatInt(params.StatementTimeout.Milliseconds(), 10)
	}

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	if params.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(params.MaxOpenConns)
	}
	if err := util.RetryErrWithContext(ctx, 3, 500*time.Millisecond, conn.PingContext); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach mysql: %w", err)
	}

	logger.Debug("[MySQL] Connected", "database", cfg.DBName)
	return New(conn, cfg.DBName), nil
}

// New wraps an open handle.
func New(conn *sql.DB, name string) *Database {
	return &Database{
		name: name,
		Base: sqldb.Base{
			DB:         conn,
			IsTimeout:  isTimeout,
			QuoteIdent: quoteIdent,
		},
	}
}

func isTimeout(err error) bool {
	var myErr *driver.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errExecutionTimeout || myErr.Number == errQueryInterrupted
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func (d *Database) Name() string { return d.name }

func (d *Database) Placeholder(int) string { return "?" }

func (d *Database) QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d *Database) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, "SHOW TABLES")
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
	rows, err := d.DB.QueryContext(ctx, "SHOW COLUMNS FROM "+quoteIdent(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var field, typ, null, key, extra sql.NullString
		var def sql.RawBytes
		if err := rows.Scan(&field, &typ, &null, &key, &def, &extra); err != nil {
			return nil, err
		}
		cols = append(cols, schema.Column{
			Name:       field.String,
			Type:       typ.String,
			PrimaryKey: key.String == "PRI",
		})
	}
	return cols, rows.Err()
}

// Explain multiplies the rows column of every line of the plan.
func (d *Database) Explain(ctx context.Context, query string) (float64, error) {
	rows, err := d.DB.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return 0, fmt.Errorf("failed to explain: %w", d.Classify(ctx, ctx, err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	rowsCol := -1
	for i, c := range cols {
		if strings.EqualFold(c, "rows") {
			rowsCol = i
		}
	}
	if rowsCol < 0 {
		return 0, errors.New("plan has no rows column")
	}

	cost := 1.0
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, err
		}
		cost *= planRows(values[rowsCol])
	}
	return cost, rows.Err()
}

func planRows(v sql.NullString) float64 {
	if !v.Valid {
		return 1
	}
	n, err := strconv.ParseFloat(v.String, 64)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// DistinctIntersect materialises each attribute's distinct values into a
// temporary table with a prefix index, then joins them on one session.
func (d *Database) DistinctIntersect(ctx context.Context, a, b *schema.Attribute) ([]string, error) {
	conn, err := d.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection: %w", err)
	}
	defer conn.Close()

	for _, attr := range []*schema.Attribute{a, b} {
		prefix := attr.IndexPrefix
		if prefix <= 0 {
			prefix = 15
		}
		col := quoteIdent(attr.Name)
		stmt := fmt.Sprintf("CREATE TEMPORARY TABLE IF NOT EXISTS %s (INDEX (%s(%d))) SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
			quoteIdent(db.TempTableName(attr)), col, prefix, col, quoteIdent(attr.Relation), col)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to prepare %s: %w", attr, d.Classify(ctx, ctx, err))
		}
	}

	query := fmt.Sprintf("SELECT DISTINCT x.%s FROM %s x JOIN %s y ON x.%s = y.%s",
		quoteIdent(a.Name), quoteIdent(db.TempTableName(a)), quoteIdent(db.TempTableName(b)),
		quoteIdent(a.Name), quoteIdent(b.Name))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, d.Classify(ctx, ctx, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}

var _ db.Database = (*Database)(nil)
