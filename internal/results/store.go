package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrRunNotFound = errors.New("run not found")

const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

// Run is a submitted batch of tasks against one database.
type Run struct {
	ID         string     `json:"id"`
	Database   string     `json:"database"`
	Strategy   string     `json:"strategy"`
	Status     string     `json:"status"`
	Tasks      int        `json:"tasks"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store keeps runs and task results in the metadata database.
type Store struct {
	conn pgxIConn
}

func NewStore(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO runs (id, database, strategy, status, tasks) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Database, r.Strategy, StatusQueued, r.Tasks)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// SetRunStatus moves a run to status. Terminal states set finished_at.
func (s *Store) SetRunStatus(ctx context.Context, id, status string, runErr error) error {
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}
	terminal := status == StatusFinished || status == StatusFailed
	tag, err := s.conn.Exec(ctx, `
UPDATE runs
SET status = $2,
    error = $3,
    finished_at = CASE WHEN $4::boolean THEN now() ELSE finished_at END
WHERE id = $1`, id, status, msg, terminal)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var msg *string
	err := s.conn.QueryRow(ctx, `
SELECT id, database, strategy, status, tasks, error, created_at, finished_at
FROM runs WHERE id = $1`, id).Scan(
		&r.ID, &r.Database, &r.Strategy, &r.Status, &r.Tasks, &msg, &r.CreatedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if msg != nil {
		r.Error = *msg
	}
	return r, nil
}

// SaveRecord upserts the result of one task of a run.
func (s *Store) SaveRecord(ctx context.Context, r Record) error {
	remaining, err := json.Marshal(r.Remaining)
	if err != nil {
		return err
	}
	rounds, err := json.Marshal(r.Rounds)
	if err != nil {
		return err
	}
	totals, err := json.Marshal(r.Totals)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
INSERT INTO task_results (run_id, task_id, database, strategy, iterations, reason, remaining, rounds, totals, elapsed_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id, task_id) DO UPDATE
SET iterations = EXCLUDED.iterations,
    reason     = EXCLUDED.reason,
    remaining  = EXCLUDED.remaining,
    rounds     = EXCLUDED.rounds,
    totals     = EXCLUDED.totals,
    elapsed_ms = EXCLUDED.elapsed_ms`,
		r.RunID, r.TaskID, r.Database, r.Strategy, r.Iterations, r.Reason,
		remaining, rounds, totals, r.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save task result: %w", err)
	}
	return nil
}

// Records returns every task result of a run ordered by task id.
func (s *Store) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.conn.Query(ctx, `
SELECT task_id, database, strategy, iterations, reason, remaining, rounds, totals, elapsed_ms
FROM task_results WHERE run_id = $1 ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{RunID: runID}
		var (
			reason                    *string
			remaining, rounds, totals []byte
			elapsedMs                 int64
		)
		if err := rows.Scan(&r.TaskID, &r.Database, &r.Strategy, &r.Iterations, &reason,
			&remaining, &rounds, &totals, &elapsedMs); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		if reason != nil {
			r.Reason = *reason
		}
		if err := decodeColumns(&r, remaining, rounds, totals); err != nil {
			return nil, err
		}
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeColumns(r *Record, remaining, rounds, totals []byte) error {
	if err := json.Unmarshal(remaining, &r.Remaining); err != nil {
		return fmt.Errorf("failed to decode remaining: %w", err)
	}
	if err := json.Unmarshal(rounds, &r.Rounds); err != nil {
		return fmt.Errorf("failed to decode rounds: %w", err)
	}
	if err := json.Unmarshal(totals, &r.Totals); err != nil {
		return fmt.Errorf("failed to decode totals: %w", err)
	}
	if len(r.Rounds) > 0 {
		r.TotalCQ = r.Rounds[0].Meta.TotalCQ
	}
	return nil
}
