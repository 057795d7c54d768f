package middleware

import (
	"context"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"

	"github.com/umich-dbgroup/litmus/internal/results"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// RunStore is the part of results.Store the routes use.
type RunStore interface {
	CreateRun(ctx context.Context, r results.Run) error
	GetRun(ctx context.Context, id string) (*results.Run, error)
	Records(ctx context.Context, runID string) ([]results.Record, error)
}

type App struct {
	Runs RunStore
	// Publish sends a message to a work queue.
	Publish func(queueName string, data []byte) error
	// Predict estimates the duration of a run in milliseconds. Optional.
	Predict      func(ctx context.Context, tasks int64, strategy string) (int64, error)
	Key          keyfunc.Keyfunc
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
