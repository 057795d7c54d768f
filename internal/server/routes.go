package server

import (
	"github.com/labstack/echo/v4"

	"github.com/umich-dbgroup/litmus/internal/server/middleware"
	"github.com/umich-dbgroup/litmus/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Run routes
	apiRoutes.POST("/runs", routes.CreateRunHandler, middleware.RequirePermission(middleware.PermRunCreate))
	apiRoutes.GET("/runs/:id", routes.GetRunHandler, middleware.RequirePermission(middleware.PermRunView))
	apiRoutes.GET("/runs/:id/summary", routes.GetRunSummaryHandler, middleware.RequirePermission(middleware.PermRunView))
}
