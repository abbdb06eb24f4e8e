package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/cmd/orchestrator/container"
	"github.com/weftlabs/weft/cmd/orchestrator/handlers"
	"github.com/weftlabs/weft/cmd/orchestrator/middleware"
	commonmw "github.com/weftlabs/weft/common/middleware"
	"github.com/weftlabs/weft/common/ratelimit"
)

// RegisterWorkflowRoutes registers all workflow definition routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c.WorkflowService, c.Components.Logger)
	r := handlers.NewRunHandler(c.RunService, c.Components.Logger)

	wf := e.Group("/api/v1/workflows")
	wf.Use(middleware.ExtractIdentity())
	wf.Use(middleware.RequireIdentity())
	if c.Limiter != nil {
		wf.Use(commonmw.UserRateLimit(c.Limiter, ratelimit.DefaultUserConfig.Limit, middleware.UserID))
	}
	{
		wf.POST("", h.CreateWorkflow)              // POST   /api/v1/workflows
		wf.GET("", h.ListWorkflows)                // GET    /api/v1/workflows
		wf.GET("/:id", h.GetWorkflow)              // GET    /api/v1/workflows/{id}
		wf.PUT("/:id", h.UpdateWorkflow)           // PUT    /api/v1/workflows/{id}
		wf.PATCH("/:id", h.PatchWorkflow)          // PATCH  /api/v1/workflows/{id}
		wf.DELETE("/:id", h.DeleteWorkflow)        // DELETE /api/v1/workflows/{id}
		wf.POST("/:id/publish", h.PublishWorkflow) // POST   /api/v1/workflows/{id}/publish
		wf.POST("/:id/archive", h.ArchiveWorkflow) // POST   /api/v1/workflows/{id}/archive
		wf.POST("/:id/execute", r.ExecuteWorkflow) // POST   /api/v1/workflows/{id}/execute
	}
}
