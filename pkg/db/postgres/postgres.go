// Package postgres connects the engine to PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umich-dbgroup/litmus/internal/util"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// codeQueryCanceled is raised when statement_timeout fires.
const codeQueryCanceled = "57014"

type Database struct {
	name string
	pool *pgxpool.Pool
}

type OpenParams struct {
	URL string
	// Database overrides the database named in URL.
	Database         string
	StatementTimeout time.Duration
	MaxConns         int32
}

// Open connects a pool with statement_timeout set on every session.
func Open(ctx context.Context, params OpenParams) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(params.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if params.Database != "" {
		cfg.ConnConfig.Database = params.Database
	}
	if params.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(params.StatementTimeout.Milliseconds(), 10)
	}
	if params.MaxConns > 0 {
		cfg.MaxConns = params.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := util.RetryErrWithContext(ctx, 3, 500*time.Millisecond, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	logger.Debug("[Postgres] Connected", "database", cfg.ConnConfig.Database)
	return &Database{name: cfg.ConnConfig.Database, pool: pool}, nil
}

func (d *Database) Name() string { return d.name }

func (d *Database) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d *Database) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeQueryCanceled {
		return fmt.Errorf("%w: %s", db.ErrTimeout, pgErr.Message)
	}
	return err
}

func (d *Database) collect(ctx context.Context, limit int, query string, args ...any) (*db.Rows, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := db.NewRows()
	read := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classify(err)
		}
		for i, v := range values {
			values[i] = plain(v)
		}
		out.Add(values)
		read++
		if limit > 0 && read >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// plain unwraps pgtype values that have no natural Go counterpart.
func plain(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		if x.Exp == 0 && x.Int != nil && x.Int.IsInt64() {
			return x.Int.Int64()
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

func (d *Database) Query(ctx context.Context, query string, args ...any) ([]cq.Tuple, error) {
	out, err := d.collect(ctx, 0, query, args...)
	if err != nil {
		return nil, err
	}
	return out.Tuples(), nil
}

func (d *Database) QueryRow(ctx context.Context, query string, args ...any) (cq.Tuple, bool, error) {
	out, err := d.collect(ctx, 1, query, args...)
	if err != nil {
		return nil, false, err
	}
	if out.Skipped() > 0 {
		return nil, true, nil
	}
	if len(out.Tuples()) == 0 {
		return nil, false, nil
	}
	return out.Tuples()[0], true, nil
}

func (d *Database) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return false, classify(err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, classify(err)
	}
	return found, nil
}

type planNode struct {
	PlanRows float64    `json:"Plan Rows"`
	Plans    []planNode `json:"Plans"`
}

// leafProduct multiplies the estimated rows of every scan node.
func leafProduct(n planNode) float64 {
	if len(n.Plans) == 0 {
		return max(n.PlanRows, 1)
	}
	cost := 1.0
	for _, child := range n.Plans {
		cost *= leafProduct(child)
	}
	return cost
}

// Explain returns the product of the planner's row estimates for every scan.
func (d *Database) Explain(ctx context.Context, query string) (float64, error) {
	var raw []byte
	if err := d.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+query).Scan(&raw); err != nil {
		return 0, fmt.Errorf("failed to explain: %w", classify(err))
	}
	return parsePlan(raw)
}

func parsePlan(raw []byte) (float64, error) {
	var plans []struct {
		Plan planNode `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &plans); err != nil {
		return 0, fmt.Errorf("failed to decode plan: %w", err)
	}
	if len(plans) == 0 {
		return 0, errors.New("empty plan")
	}
	return leafProduct(plans[0].Plan), nil
}

func (d *Database) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (d *Database) DescribeColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT c.column_name, c.data_type,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON tc.constraint_name = k.constraint_name
					AND tc.table_schema = k.table_schema
					AND tc.table_name = k.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (schema.Column, error) {
		var c schema.Column
		err := row.Scan(&c.Name, &c.Type, &c.PrimaryKey)
		return c, err
	})
}

func (d *Database) MinMax(ctx context.Context, table, column string) (*float64, *float64, error) {
	col := pgx.Identifier{column}.Sanitize()
	query := fmt.Sprintf("SELECT MIN(%s)::float8, MAX(%s)::float8 FROM %s", col, col, pgx.Identifier{table}.Sanitize())

	var lo, hi *float64
	if err := d.pool.QueryRow(ctx, query).Scan(&lo, &hi); err != nil {
		return nil, nil, fmt.Errorf("failed to read min/max: %w", err)
	}
	return lo, hi, nil
}

// DistinctIntersect materialises each attribute's distinct values into an
// indexed temp table on one session and joins the two.
func (d *Database) DistinctIntersect(ctx context.Context, a, b *schema.Attribute) ([]string, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	for _, attr := range []*schema.Attribute{a, b} {
		tmp := pgx.Identifier{db.TempTableName(attr)}.Sanitize()
		stmts := []string{
			fmt.Sprintf("CREATE TEMP TABLE IF NOT EXISTS %s AS SELECT DISTINCT %s::text AS v FROM %s WHERE %s IS NOT NULL",
				tmp, pgx.Identifier{attr.Name}.Sanitize(), pgx.Identifier{attr.Relation}.Sanitize(), pgx.Identifier{attr.Name}.Sanitize()),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (v)", pgx.Identifier{db.TempTableName(attr) + "_idx"}.Sanitize(), tmp),
		}
		for _, stmt := range stmts {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("failed to prepare %s: %w", attr, classify(err))
			}
		}
	}

	query := fmt.Sprintf("SELECT DISTINCT x.v FROM %s x JOIN %s y ON x.v = y.v ORDER BY x.v",
		pgx.Identifier{db.TempTableName(a)}.Sanitize(), pgx.Identifier{db.TempTableName(b)}.Sanitize())
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err)
	}
	return values, nil
}

func (d *Database) Close() error {
	d.pool.Close()
	return nil
}

var _ db.Database = (*Database)(nil)
