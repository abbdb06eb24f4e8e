package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/cmd/orchestrator/executor"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/ratelimit"
	"github.com/weftlabs/weft/common/repository"
	"github.com/weftlabs/weft/common/sdk"
)

// RunStore is the persistence surface the run service needs.
// *repository.RunRepository satisfies it.
type RunStore interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error)
	GetByIDForOrg(ctx context.Context, id uuid.UUID, orgID string) (*models.WorkflowRun, error)
	GetByIDForUser(ctx context.Context, id uuid.UUID, userID string, orgID *string) (*models.WorkflowRun, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, patch repository.RunStatusPatch) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowRun, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.WorkflowRun, error)
}

// RunStepStore lists the recorded steps of a run.
type RunStepStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.WorkflowStep, error)
}

// Runner drives run execution. *executor.Engine satisfies it.
type Runner interface {
	Execute(ctx context.Context, plan *compiler.ExecutionPlan, run *models.WorkflowRun, opts executor.Options) (*executor.Outcome, error)
	Resume(ctx context.Context, plan *compiler.ExecutionPlan, run *models.WorkflowRun, decision approval.Decision) (*executor.Outcome, error)
	Cancel(runID uuid.UUID) bool
}

// Throttle rate-limits run creation per owner and workflow tier.
// *ratelimit.RateLimiter satisfies it.
type Throttle interface {
	CheckTieredLimit(ctx context.Context, username string, tier ratelimit.WorkflowTier) (*ratelimit.RateLimitResult, error)
}

// RunService handles the run lifecycle: create, start, resume, cancel,
// inspect. It owns input validation and the compiled-plan cache; the
// executor owns everything after a run starts.
type RunService struct {
	defs      DefinitionStore
	runs      RunStore
	steps     RunStepStore
	runner    Runner
	approvals *approval.Coordinator
	throttle  Throttle
	plans     *PlanCache
	clock     sdk.Clock
	newID     sdk.IDFunc
	log       *logger.Logger
}

// RunServiceOpts configures the run service.
type RunServiceOpts struct {
	Definitions DefinitionStore
	Runs        RunStore
	Steps       RunStepStore
	Runner      Runner
	Approvals   *approval.Coordinator
	Throttle    Throttle
	Plans       *PlanCache
	Clock       sdk.Clock
	NewID       sdk.IDFunc
	Logger      *logger.Logger
}

// NewRunService creates a new run service
func NewRunService(opts RunServiceOpts) *RunService {
	clock := opts.Clock
	if clock == nil {
		clock = sdk.SystemClock{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = sdk.NewID
	}
	plans := opts.Plans
	if plans == nil {
		plans = NewPlanCache(nil, 0, opts.Logger)
	}
	return &RunService{
		defs:      opts.Definitions,
		runs:      opts.Runs,
		steps:     opts.Steps,
		runner:    opts.Runner,
		approvals: opts.Approvals,
		throttle:  opts.Throttle,
		plans:     plans,
		clock:     clock,
		newID:     newID,
		log:       opts.Logger,
	}
}

// CreateRunRequest asks for a new run of a workflow.
type CreateRunRequest struct {
	WorkflowID uuid.UUID              `json:"workflowId"`
	Input      map[string]interface{} `json:"input"`
}

// ResumeRunRequest carries a human decision into a suspended run.
type ResumeRunRequest struct {
	Approved   bool                   `json:"approved"`
	ApprovedBy string                 `json:"approvedBy"`
	Reason     string                 `json:"reason"`
	Data       map[string]interface{} `json:"data"`
}

// RateLimitError reports a rejected run creation with retry guidance.
type RateLimitError struct {
	Tier              ratelimit.WorkflowTier
	Limit             int64
	CurrentCount      int64
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s tier allows %d runs/minute, retry after %d seconds",
		e.Tier, e.Limit, e.RetryAfterSeconds)
}

// CreateRun validates the workflow graph and the input against the
// workflow's input schema, then persists a pending run. Validation
// failures produce no run row.
func (s *RunService) CreateRun(ctx context.Context, owner models.Owner, req *CreateRunRequest) (*models.WorkflowRun, error) {
	if req.WorkflowID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "workflowId is required")
	}

	// 1. Load the workflow within the owner's scope
	def, err := s.getDefinition(ctx, owner, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if def.Status == models.WorkflowArchived {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s is archived", def.ID)
	}

	// 2. Throttle by workflow tier before doing any further work
	if s.throttle != nil {
		profile := ratelimit.InspectDefinition(def)
		result, rlErr := s.throttle.CheckTieredLimit(ctx, throttleKey(owner), profile.Tier)
		if rlErr != nil {
			// Rate limiting fails open: a broken limiter must not take
			// run creation down with it.
			s.log.Warn("rate limit check failed, allowing run",
				"workflow_id", def.ID,
				"error", rlErr)
		} else if !result.Allowed {
			return nil, &RateLimitError{
				Tier:              profile.Tier,
				Limit:             result.Limit,
				CurrentCount:      result.CurrentCount,
				RetryAfterSeconds: result.RetryAfterSeconds,
			}
		}
	}

	// 3. The graph must compile and the input must fit the schema;
	//    nothing is persisted until both hold
	if _, err := s.plans.PlanFor(ctx, def); err != nil {
		return nil, err
	}
	if err := validateRunInput(def.InputSchema, req.Input); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	run := &models.WorkflowRun{
		ID:              s.newID(),
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		UserID:          optional(owner.UserID),
		OrgID:           optional(owner.OrgID),
		Status:          models.RunPending,
		Input:           req.Input,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.log.Info("run created",
		"run_id", run.ID,
		"workflow_id", def.ID,
		"workflow_version", def.Version)
	return run, nil
}

// StartRun hands a pending run to the executor and blocks until its
// first outcome: completed, failed, or suspended on an approval.
func (s *RunService) StartRun(ctx context.Context, owner models.Owner, runID uuid.UUID) (*executor.Outcome, error) {
	run, err := s.getRun(ctx, owner, runID)
	if err != nil {
		return nil, err
	}
	switch {
	case run.Status == models.RunSuspended:
		return nil, apperr.Newf(apperr.KindConflict, "run %s is awaiting approval; resume it instead", runID)
	case run.Status == models.RunRunning:
		return nil, apperr.Newf(apperr.KindConflict, "run %s is already running", runID)
	case run.Status.Terminal():
		return nil, apperr.Newf(apperr.KindConflict, "run %s has already finished", runID)
	}

	plan, err := s.planForRun(ctx, run)
	if err != nil {
		return nil, err
	}
	return s.runner.Execute(ctx, plan, run, executor.Options{})
}

// ResumeRun delivers an approval decision into a suspended run and
// blocks until the next outcome. Resuming an already-terminal run is a
// no-op returning the recorded outcome.
func (s *RunService) ResumeRun(ctx context.Context, owner models.Owner, runID uuid.UUID, req *ResumeRunRequest) (*executor.Outcome, error) {
	run, err := s.getRun(ctx, owner, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return outcomeFromRun(run), nil
	}
	if run.Status != models.RunSuspended {
		return nil, apperr.Newf(apperr.KindConflict, "run %s is not awaiting approval", runID)
	}

	plan, err := s.planForRun(ctx, run)
	if err != nil {
		return nil, err
	}

	decision := approval.Decision{
		Approved:   req.Approved,
		ApprovedBy: req.ApprovedBy,
		Reason:     req.Reason,
		Data:       req.Data,
		DecidedAt:  s.clock.Now(),
	}
	return s.runner.Resume(ctx, plan, run, decision)
}

// CancelRun stops a run that has not finished. Runs executing in this
// process are cancelled through the engine; orphaned pending or
// suspended rows are flipped directly.
func (s *RunService) CancelRun(ctx context.Context, owner models.Owner, runID uuid.UUID) error {
	run, err := s.getRun(ctx, owner, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return apperr.Newf(apperr.KindConflict, "run %s has already finished", runID)
	}

	if s.runner.Cancel(run.ID) {
		s.log.Info("run cancel requested", "run_id", run.ID)
		return nil
	}

	// No task in this process. Pending and suspended rows can be closed
	// out here; a run executing elsewhere cannot.
	if run.Status != models.RunPending && run.Status != models.RunSuspended {
		return apperr.Newf(apperr.KindConflict, "run %s is executing in another process", runID)
	}

	updated, err := s.runs.UpdateStatus(ctx, run.ID, repository.RunStatusPatch{
		Status:      models.RunCancelled,
		Error:       &models.RunError{Code: string(apperr.KindCancelled), Message: "run cancelled"},
		EngineState: run.EngineState,
		Now:         s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	if updated == nil {
		return apperr.Newf(apperr.KindConflict, "run %s reached a terminal status concurrently", runID)
	}

	if s.approvals != nil && run.EngineState != nil && run.EngineState.PendingApproval != nil {
		s.approvals.Reject(run.EngineState.PendingApproval.ApprovalID, "cancelled")
	}

	s.log.Info("run cancelled", "run_id", run.ID)
	return nil
}

// GetRun returns a run the owner can see.
func (s *RunService) GetRun(ctx context.Context, owner models.Owner, runID uuid.UUID) (*models.WorkflowRun, error) {
	return s.getRun(ctx, owner, runID)
}

// ListRunSteps returns a run's recorded steps in execution order.
func (s *RunService) ListRunSteps(ctx context.Context, owner models.Owner, runID uuid.UUID) ([]*models.WorkflowStep, error) {
	if _, err := s.getRun(ctx, owner, runID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	return steps, nil
}

// ListRuns lists the owner's runs, optionally filtered to one workflow.
func (s *RunService) ListRuns(ctx context.Context, owner models.Owner, workflowID *uuid.UUID, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if workflowID != nil {
		// Ownership of the workflow gates its run history
		if _, err := s.getDefinition(ctx, owner, *workflowID); err != nil {
			return nil, err
		}
		return s.runs.ListByWorkflow(ctx, *workflowID, limit)
	}
	if owner.UserID == "" {
		return nil, apperr.New(apperr.KindValidation, "listing runs requires an owner scope")
	}
	return s.runs.ListByUser(ctx, owner.UserID, limit)
}

// ExecuteWorkflow creates a run and starts it in one call.
func (s *RunService) ExecuteWorkflow(ctx context.Context, owner models.Owner, req *CreateRunRequest) (*models.WorkflowRun, *executor.Outcome, error) {
	run, err := s.CreateRun(ctx, owner, req)
	if err != nil {
		return nil, nil, err
	}
	outcome, err := s.StartRun(ctx, owner, run.ID)
	if err != nil {
		return run, nil, err
	}
	return run, outcome, nil
}

func (s *RunService) getRun(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowRun, error) {
	var (
		run *models.WorkflowRun
		err error
	)
	switch {
	case owner.UserID != "":
		run, err = s.runs.GetByIDForUser(ctx, id, owner.UserID, optional(owner.OrgID))
	case owner.OrgID != "":
		run, err = s.runs.GetByIDForOrg(ctx, id, owner.OrgID)
	default:
		run, err = s.runs.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "run %s not found", id)
	}
	return run, nil
}

func (s *RunService) getDefinition(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowDefinition, error) {
	var (
		def *models.WorkflowDefinition
		err error
	)
	switch {
	case owner.UserID != "":
		def, err = s.defs.GetByIDForUser(ctx, id, owner.UserID, optional(owner.OrgID))
	case owner.OrgID != "":
		def, err = s.defs.GetByIDForOrg(ctx, id, owner.OrgID)
	default:
		def, err = s.defs.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if def == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "workflow %s not found", id)
	}
	return def, nil
}

// planForRun compiles the plan for the definition version the run was
// created against. A definition that moved on since then cannot back
// the run's snapshot.
func (s *RunService) planForRun(ctx context.Context, run *models.WorkflowRun) (*compiler.ExecutionPlan, error) {
	def, err := s.defs.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if def == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "workflow %s not found", run.WorkflowID)
	}
	if def.Version != run.WorkflowVersion {
		return nil, apperr.Newf(apperr.KindConflict,
			"workflow %s is at version %d but the run was created against version %d",
			def.ID, def.Version, run.WorkflowVersion)
	}
	return s.plans.PlanFor(ctx, def)
}

// outcomeFromRun reconstructs a terminal outcome from a persisted row.
func outcomeFromRun(run *models.WorkflowRun) *executor.Outcome {
	out := &executor.Outcome{
		RunID:  run.ID,
		Status: run.Status,
		Output: run.Output,
	}
	if run.Error != nil {
		out.Err = apperr.New(apperr.Kind(run.Error.Code), run.Error.Message)
	}
	return out
}

func throttleKey(owner models.Owner) string {
	if owner.UserID != "" {
		return owner.UserID
	}
	if owner.OrgID != "" {
		return "org:" + owner.OrgID
	}
	return "anonymous"
}
