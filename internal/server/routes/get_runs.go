package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/umich-dbgroup/litmus/internal/analysis"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/server/middleware"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

type runProgress struct {
	Done    int `json:"done"`
	Percent int `json:"percent"`
	// TimeRemaining is in milliseconds.
	TimeRemaining *int64 `json:"time_remaining,omitempty"`
}

func progress(run *results.Run, done int, eta int64, now time.Time) runProgress {
	p := runProgress{Done: done}
	if run.Tasks > 0 {
		p.Percent = done * 100 / run.Tasks
	}
	if eta > 0 && run.Status != results.StatusFinished && run.Status != results.StatusFailed {
		remaining := max(eta-now.Sub(run.CreatedAt).Milliseconds(), 0)
		p.TimeRemaining = &remaining
	}
	return p
}

func GetRunHandler(c echo.Context) error {
	type getRunResponse struct {
		Run      *results.Run     `json:"run"`
		Progress runProgress      `json:"progress"`
		Records  []results.Record `json:"records"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	run, recs, err := loadRun(c)
	if err != nil {
		return err
	}

	var eta int64
	if app.Predict != nil {
		eta, _ = app.Predict(ctx, int64(run.Tasks), run.Strategy)
	}
	return c.JSON(http.StatusOK, getRunResponse{
		Run:      run,
		Progress: progress(run, len(recs), eta, time.Now()),
		Records:  recs,
	})
}

func GetRunSummaryHandler(c echo.Context) error {
	run, recs, err := loadRun(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run":     run,
		"summary": analysis.Summarize(recs),
	})
}

// loadRun fails with an *echo.HTTPError.
func loadRun(c echo.Context) (*results.Run, []results.Record, error) {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	id := c.Param("id")

	run, err := app.Runs.GetRun(ctx, id)
	if errors.Is(err, results.ErrRunNotFound) {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "Run not found")
	}
	if err != nil {
		logger.Error("[Server] Failed to get run", "run", id, "err", err)
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	recs, err := app.Runs.Records(ctx, id)
	if err != nil {
		logger.Error("[Server] Failed to list task results", "run", id, "err", err)
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	return run, recs, nil
}
