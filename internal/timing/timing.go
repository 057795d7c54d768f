package timing

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

// History is the number of recent runs a prediction averages over.
const History = 50

func AddRunTime(
	ctx context.Context,
	strategy string,
	tasks int64,
	durationMs int64,
	conn pgxIConn,
) error {
	_, err := conn.Exec(ctx,
		`INSERT INTO run_stats (strategy, tasks, duration_ms) VALUES ($1, $2, $3)`,
		strategy, tasks, durationMs)
	return err
}

// PredictRunTime estimates the duration of a run of tasks from the time per
// task of recent runs with the same strategy. It returns 0 without history.
func PredictRunTime(ctx context.Context, tasks int64, strategy string, conn pgxIConn) (int64, error) {
	var perTask float64
	err := conn.QueryRow(ctx, `
SELECT COALESCE(SUM(duration_ms)::float8 / NULLIF(SUM(tasks), 0), 0)
FROM (
    SELECT duration_ms, tasks
    FROM run_stats
    WHERE strategy = $1
    ORDER BY created_at DESC
    LIMIT $2
) recent`, strategy, History).Scan(&perTask)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(perTask * float64(tasks))), nil
}
