package routes

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/umich-dbgroup/litmus/internal/queue"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/server/middleware"
	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// CreateRunHandler validates a task file, stores the run and hands it to
// the workers.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		Database string          `json:"database" validate:"required"`
		Strategy string          `json:"strategy" validate:"required"`
		Tasks    json.RawMessage `json:"tasks" validate:"required"`
	}

	type createRunResponse struct {
		Message string       `json:"message"`
		Run     *results.Run `json:"run,omitempty"`
		// EstimatedDuration is in milliseconds.
		EstimatedDuration *int64 `json:"estimated_duration,omitempty"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid request body"})
	}
	if !slices.Contains(disambig.Names(), data.Strategy) {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Unknown strategy"})
	}
	tasks, err := task.Parse(data.Tasks, json.Unmarshal)
	if err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid task file: " + err.Error()})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Internal server error"})
	}
	run := results.Run{
		ID:       id,
		Database: data.Database,
		Strategy: data.Strategy,
		Status:   results.StatusQueued,
		Tasks:    len(tasks),
	}
	if err := app.Runs.CreateRun(ctx, run); err != nil {
		logger.Error("[Server] Failed to create run", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Internal server error"})
	}

	correlationID, _ := gonanoid.New()
	msg, err := json.Marshal(queue.RunMsg{
		RunID:         id,
		CorrelationID: correlationID,
		Database:      data.Database,
		Strategy:      data.Strategy,
		Tasks:         data.Tasks,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Internal server error"})
	}
	if err := app.Publish(queue.RunQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue run", "run", id, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Failed to enqueue run"})
	}
	logger.Info("[Server] Run queued", "run", id, "correlation_id", correlationID, "tasks", len(tasks))

	resp := createRunResponse{Message: "Run queued", Run: &run}
	if app.Predict != nil {
		if eta, err := app.Predict(ctx, int64(len(tasks)), data.Strategy); err == nil && eta > 0 {
			resp.EstimatedDuration = &eta
		}
	}
	return c.JSON(http.StatusAccepted, resp)
}
