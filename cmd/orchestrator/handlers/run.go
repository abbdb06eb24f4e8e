package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/cmd/orchestrator/executor"
	"github.com/weftlabs/weft/cmd/orchestrator/middleware"
	"github.com/weftlabs/weft/cmd/orchestrator/service"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
)

// RunHandler handles run lifecycle requests
type RunHandler struct {
	runs *service.RunService
	log  *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs *service.RunService, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runs: runs,
		log:  log,
	}
}

// createRunPayload is the wire shape for run creation. It carries the
// retired definitionId field only to reject it with a pointer at the
// replacement, instead of silently ignoring what old clients send.
type createRunPayload struct {
	WorkflowID   uuid.UUID              `json:"workflowId"`
	Input        map[string]interface{} `json:"input"`
	DefinitionID *uuid.UUID             `json:"definitionId"`
}

// CreateRun creates a pending run without starting it
// POST /api/v1/runs
func (h *RunHandler) CreateRun(c echo.Context) error {
	var payload createRunPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if payload.DefinitionID != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "definitionId is no longer accepted; use workflowId",
		})
	}

	run, err := h.runs.CreateRun(c.Request().Context(), middleware.Owner(c), &service.CreateRunRequest{
		WorkflowID: payload.WorkflowID,
		Input:      payload.Input,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, run)
}

// StartRun starts a pending run and reports its first outcome
// POST /api/v1/runs/:id/start
func (h *RunHandler) StartRun(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	outcome, err := h.runs.StartRun(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, outcomeBody(outcome))
}

// ResumeRun delivers an approval decision into a suspended run
// POST /api/v1/runs/:id/resume
func (h *RunHandler) ResumeRun(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req service.ResumeRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	h.log.Info("resume requested",
		"run_id", id,
		"approved", req.Approved,
		"approved_by", req.ApprovedBy)

	outcome, err := h.runs.ResumeRun(c.Request().Context(), middleware.Owner(c), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, outcomeBody(outcome))
}

// CancelRun stops an unfinished run
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) CancelRun(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.runs.CancelRun(c.Request().Context(), middleware.Owner(c), id); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"runId":  id,
		"status": string(models.RunCancelled),
	})
}

// GetRun retrieves a run
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	run, err := h.runs.GetRun(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns lists the caller's runs, optionally for one workflow
// GET /api/v1/runs?workflowId=...&limit=50
func (h *RunHandler) ListRuns(c echo.Context) error {
	var workflowID *uuid.UUID
	if raw := c.QueryParam("workflowId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "workflowId must be a valid uuid",
			})
		}
		workflowID = &id
	}

	runs, err := h.runs.ListRuns(c.Request().Context(), middleware.Owner(c), workflowID, queryLimit(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListRunSteps returns a run's recorded steps in execution order
// GET /api/v1/runs/:id/steps
func (h *RunHandler) ListRunSteps(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	steps, err := h.runs.ListRunSteps(c.Request().Context(), middleware.Owner(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runId": id,
		"steps": steps,
		"count": len(steps),
	})
}

// ExecuteWorkflow creates and starts a run in one request
// POST /api/v1/workflows/:id/execute
func (h *RunHandler) ExecuteWorkflow(c echo.Context) error {
	workflowID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Input map[string]interface{} `json:"input"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	run, outcome, err := h.runs.ExecuteWorkflow(c.Request().Context(), middleware.Owner(c), &service.CreateRunRequest{
		WorkflowID: workflowID,
		Input:      body.Input,
	})
	if err != nil {
		// The run may exist even when starting it failed
		if run != nil {
			h.log.Warn("run created but failed to start", "run_id", run.ID, "error", err)
		}
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":     run,
		"outcome": outcomeBody(outcome),
	})
}

// outcomeBody shapes an executor outcome for the wire
func outcomeBody(outcome *executor.Outcome) map[string]interface{} {
	body := map[string]interface{}{
		"runId":  outcome.RunID,
		"status": string(outcome.Status),
	}
	if outcome.Output != nil {
		body["output"] = outcome.Output
	}
	if outcome.ApprovalID != "" {
		body["approvalId"] = outcome.ApprovalID
	}
	if outcome.Err != nil {
		body["error"] = map[string]interface{}{
			"code":    string(apperr.KindOf(outcome.Err)),
			"message": outcome.Err.Error(),
		}
	}
	if outcome.Compensation != nil {
		body["compensation"] = outcome.Compensation
	}
	return body
}
