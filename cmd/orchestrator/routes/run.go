package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/cmd/orchestrator/container"
	"github.com/weftlabs/weft/cmd/orchestrator/handlers"
	"github.com/weftlabs/weft/cmd/orchestrator/middleware"
	commonmw "github.com/weftlabs/weft/common/middleware"
	"github.com/weftlabs/weft/common/ratelimit"
)

// RegisterRunRoutes registers all run lifecycle routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c.RunService, c.Components.Logger)

	runs := e.Group("/api/v1/runs")
	runs.Use(middleware.ExtractIdentity())
	runs.Use(middleware.RequireIdentity())
	if c.Limiter != nil {
		runs.Use(commonmw.UserRateLimit(c.Limiter, ratelimit.DefaultUserConfig.Limit, middleware.UserID))
	}
	{
		runs.POST("", h.CreateRun)             // POST /api/v1/runs
		runs.GET("", h.ListRuns)               // GET  /api/v1/runs?workflowId=...
		runs.GET("/:id", h.GetRun)             // GET  /api/v1/runs/{id}
		runs.POST("/:id/start", h.StartRun)    // POST /api/v1/runs/{id}/start
		runs.POST("/:id/resume", h.ResumeRun)  // POST /api/v1/runs/{id}/resume
		runs.POST("/:id/cancel", h.CancelRun)  // POST /api/v1/runs/{id}/cancel
		runs.GET("/:id/steps", h.ListRunSteps) // GET  /api/v1/runs/{id}/steps
	}
}
