package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/cmd/orchestrator/middleware"
	"github.com/weftlabs/weft/cmd/orchestrator/service"
	"github.com/weftlabs/weft/common/logger"
)

// WorkflowHandler handles workflow definition requests
type WorkflowHandler struct {
	workflows *service.WorkflowService
	log       *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows *service.WorkflowService, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflows: workflows,
		log:       log,
	}
}

// CreateWorkflow creates a new draft workflow
// POST /api/v1/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	def, err := h.workflows.CreateWorkflow(ctx, middleware.Owner(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, def)
}

// GetWorkflow retrieves a workflow by id
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	def, err := h.workflows.GetWorkflow(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, def)
}

// ListWorkflows lists the caller's workflows
// GET /api/v1/workflows?limit=50
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	defs, err := h.workflows.ListWorkflows(c.Request().Context(), middleware.Owner(c), queryLimit(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": defs,
		"count":     len(defs),
	})
}

// UpdateWorkflow replaces a draft workflow's contents
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) UpdateWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req service.UpdateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	def, err := h.workflows.UpdateWorkflow(c.Request().Context(), middleware.Owner(c), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, def)
}

// PatchWorkflow applies JSON Patch operations to a draft workflow
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Operations []map[string]interface{} `json:"operations"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if len(req.Operations) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "operations array is required and cannot be empty",
		})
	}

	h.log.Info("patching workflow",
		"workflow_id", id,
		"user_id", middleware.UserID(c),
		"operations", len(req.Operations))

	def, err := h.workflows.PatchWorkflow(c.Request().Context(), middleware.Owner(c), id, req.Operations)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, def)
}

// PublishWorkflow freezes a draft for execution
// POST /api/v1/workflows/:id/publish
func (h *WorkflowHandler) PublishWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	def, err := h.workflows.PublishWorkflow(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, def)
}

// ArchiveWorkflow retires a published workflow
// POST /api/v1/workflows/:id/archive
func (h *WorkflowHandler) ArchiveWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	def, err := h.workflows.ArchiveWorkflow(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, def)
}

// DeleteWorkflow deletes a draft workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) DeleteWorkflow(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.workflows.DeleteWorkflow(c.Request().Context(), middleware.Owner(c), id); err != nil {
		return respondError(c, h.log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// pathUUID parses a path parameter as a UUID. The returned error is an
// *echo.HTTPError ready to hand back from the handler.
func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a valid uuid")
	}
	return id, nil
}

// queryLimit parses the optional limit query parameter
func queryLimit(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
