package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/runner"
	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/internal/timing"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// RunStore is the part of results.Store a worker writes to.
type RunStore interface {
	SetRunStatus(ctx context.Context, id, status string, runErr error) error
	SaveRecord(ctx context.Context, rec results.Record) error
}

// RunnerFactory returns a runner for a database and strategy.
type RunnerFactory func(ctx context.Context, database, strategy string) (*runner.Runner, error)

type ProcessRunParams struct {
	Store   RunStore
	Runners RunnerFactory
	Workers int
	// Stats receives the run duration for ETA predictions. Optional.
	Stats *pgxpool.Pool
	// Publish announces the end of the run. Optional.
	Publish func(topic string, data []byte) error
}

// ProcessRunMessage runs every task of a RunMsg and stores the records. The
// run is marked failed before the error is returned so a retry starts from
// a consistent state.
func ProcessRunMessage(ctx context.Context, params ProcessRunParams, body []byte) (err error) {
	var msg RunMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to decode run message: %w", err)
	}
	start := time.Now()
	logger.Info("[Queue] Run started", "run", msg.RunID, "correlation_id", msg.CorrelationID, "database", msg.Database, "strategy", msg.Strategy)

	tasks, err := task.Parse(msg.Tasks, json.Unmarshal)
	if err != nil {
		return err
	}
	if err := params.Store.SetRunStatus(ctx, msg.RunID, results.StatusRunning, nil); err != nil {
		return err
	}
	defer func() {
		status := results.StatusFinished
		if err != nil {
			status = results.StatusFailed
		}
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := params.Store.SetRunStatus(updateCtx, msg.RunID, status, err); updateErr != nil {
			logger.Warn("[Queue] Failed to update run status", "run", msg.RunID, "err", updateErr)
		}
		announce(params, msg, status, len(tasks), time.Since(start), err)
	}()

	r, err := params.Runners(ctx, msg.Database, msg.Strategy)
	if err != nil {
		return err
	}
	err = r.RunAll(ctx, runner.RunAllParams{
		RunID:   msg.RunID,
		Tasks:   tasks,
		Workers: params.Workers,
		Sink:    runner.SinkFunc(params.Store.SaveRecord),
	})
	if err != nil {
		return err
	}

	if params.Stats != nil {
		if err := timing.AddRunTime(ctx, msg.Strategy, int64(len(tasks)), time.Since(start).Milliseconds(), params.Stats); err != nil {
			logger.Warn("[Queue] Failed to record run time", "run", msg.RunID, "err", err)
		}
	}
	logger.Info("[Queue] Run finished", "run", msg.RunID, "tasks", len(tasks), "elapsed", time.Since(start))
	return nil
}

func announce(params ProcessRunParams, msg RunMsg, status string, tasks int, elapsed time.Duration, runErr error) {
	if params.Publish == nil {
		return
	}
	ev := RunEvent{RunID: msg.RunID, Status: status, Tasks: tasks, Elapsed: elapsed, Database: msg.Database}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := params.Publish(EventTopic(msg.RunID, status), data); err != nil {
		logger.Warn("[Queue] Failed to publish run event", "run", msg.RunID, "err", err)
	}
}
