package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/repository"
)

// runLoop walks the plan's top-level order from start. Body nodes never
// appear here; their controllers run them through a bodyRunner. Returns
// the run's terminal outcome, or parks inside suspend until it has one.
func (e *Engine) runLoop(ctx context.Context, st *runState, start int) *Outcome {
	if start == 0 {
		if err := e.persistSnapshot(ctx, st, models.RunRunning, nil); err != nil {
			return e.persistFailure(ctx, st, "", err)
		}
		e.logger.WithRunID(st.run.ID.String()).Info("run started",
			"workflow_id", st.run.WorkflowID,
			"nodes", len(st.plan.Order))
		e.emitRun(ctx, st, models.EventRunStarted, models.RunRunning, "", nil)
	}

	for i := start; i < len(st.plan.Order); i++ {
		if ctx.Err() != nil {
			return e.failRun(ctx, st, "", apperr.Wrap(apperr.KindCancelled, "run cancelled", ctx.Err()))
		}

		pn := st.plan.Nodes[st.plan.Order[i]]

		if !e.live(st, pn) {
			if out := e.skipNode(ctx, st, pn); out != nil {
				return out
			}
			continue
		}

		res, started, finished, err := e.executeNode(ctx, st, pn)
		if err != nil {
			return e.failNode(ctx, st, pn, err, started, finished)
		}

		if res.Suspension != nil {
			if out := e.suspend(ctx, st, pn, res.Suspension); out != nil {
				return out
			}
			continue
		}

		if out := e.completeNode(ctx, st, pn, res.Output, started, finished); out != nil {
			return out
		}
	}

	return e.completeRun(ctx, st)
}

// live reports whether any inbound edge carries execution into the node.
// An edge is live when its source completed and, for condition sources,
// its label matches the selected branch; unlabeled edges pass through any
// branch. Nodes with no inbound edges are always live.
func (e *Engine) live(st *runState, pn *compiler.PlanNode) bool {
	inbound := 0
	for _, edge := range pn.Inbound {
		if edge.Label == compiler.EdgeLabelBody {
			continue
		}
		inbound++

		if st.skipped[edge.Source] {
			continue
		}
		src := st.plan.Nodes[edge.Source]
		if src.Node.Type == models.NodeTypeCondition {
			if edge.Label != "" && edge.Label != branchOf(st.results[edge.Source]) {
				continue
			}
		}
		return true
	}
	return inbound == 0
}

func branchOf(output interface{}) string {
	if m, ok := output.(map[string]interface{}); ok {
		if branch, ok := m["branch"].(string); ok {
			return branch
		}
	}
	return ""
}

// skipNode records a skipped outcome with a null output; successors see
// the node as terminal and evaluate their own liveness normally.
func (e *Engine) skipNode(ctx context.Context, st *runState, pn *compiler.PlanNode) *Outcome {
	st.markSkipped(pn.Node.ID)

	now := e.clock.Now()
	if err := e.appendStep(ctx, st, pn, models.StepSkipped, nil, nil, now, now); err != nil {
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}
	if err := e.persistSnapshot(ctx, st, models.RunRunning, nil); err != nil {
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}

	e.logger.WithRunID(st.run.ID.String()).WithNodeID(pn.Node.ID).Debug("node skipped: no live inbound edge")
	e.emitNode(ctx, st, pn, models.EventNodeSkipped, models.StepSkipped, "")
	return nil
}

// executeNode dispatches the node's handler with retries. Retries apply
// only to retryable failures and never produce extra step records; the
// final attempt's outcome is what gets recorded.
func (e *Engine) executeNode(ctx context.Context, st *runState, pn *compiler.PlanNode) (*worker.Result, time.Time, time.Time, error) {
	started := e.clock.Now()

	ec := &worker.ExecutionContext{
		RunID:        st.run.ID.String(),
		Node:         pn.Node,
		Results:      st.results,
		Compensation: st.comp,
	}
	if pn.Node.Type == models.NodeTypeLoop || pn.Node.Type == models.NodeTypeParallel {
		ec.Body = &bodyRunner{engine: e, state: st}
	}

	e.emitNode(ctx, st, pn, models.EventNodeStarted, models.StepRunning, "")

	res, err := e.runAttempts(ctx, st, pn, ec)
	return res, started, e.clock.Now(), err
}

// runAttempts is the shared dispatch loop for top-level and body nodes.
func (e *Engine) runAttempts(ctx context.Context, st *runState, pn *compiler.PlanNode, ec *worker.ExecutionContext) (*worker.Result, error) {
	handler, ok := e.handlers[pn.Node.Type]
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "no handler registered for node type %q", pn.Node.Type)
	}

	policy, err := retryPolicy(pn.Node)
	if err != nil {
		return nil, err
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	log := e.logger.WithRunID(ec.RunID).WithNodeID(pn.Node.ID)

	for attempt := 1; ; attempt++ {
		res, err := e.invoke(ctx, st, pn, handler, ec)
		if err == nil {
			return res, nil
		}
		if attempt >= maxAttempts || !apperr.Retryable(err) {
			return nil, err
		}

		delay := e.retryDelay(policy, attempt)
		log.Warn("node attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err)
		if serr := e.clock.Sleep(ctx, delay); serr != nil {
			return nil, err
		}
	}
}

// invoke runs one handler attempt under the per-node timeout and gates
// the output through JSON normalization so everything entering step
// results (and the snapshot) is durable.
func (e *Engine) invoke(ctx context.Context, st *runState, pn *compiler.PlanNode, handler worker.Handler, ec *worker.ExecutionContext) (*worker.Result, error) {
	nodeCtx := ctx
	timeout := st.nodeTimeout
	if timeout <= 0 {
		timeout = e.cfg.NodeTimeout
	}
	// Approval nodes answer immediately with a suspension; their waiting
	// is governed by the approval deadline, not the node ceiling.
	if timeout > 0 && pn.Node.Type != models.NodeTypeApproval {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := handler.Execute(nodeCtx, ec)
	if err != nil {
		if nodeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, apperr.Newf(apperr.KindInternal, "node %s exceeded its %s timeout", pn.Node.ID, timeout)
		}
		return nil, err
	}
	if res == nil {
		return nil, apperr.Newf(apperr.KindInternal, "handler for node type %q returned no result", pn.Node.Type)
	}

	if res.Suspension == nil {
		normalized, nerr := models.NormalizeJSON(res.Output)
		if nerr != nil {
			return nil, apperr.Wrap(apperr.KindInternal,
				fmt.Sprintf("node %s produced a non-durable output", pn.Node.ID), nerr)
		}
		res.Output = normalized
	}
	return res, nil
}

func retryPolicy(node models.Node) (models.RetryPolicy, error) {
	var policy models.RetryPolicy
	raw, ok := node.Data["retry"]
	if !ok || raw == nil {
		return policy, nil
	}

	data, ok := raw.(map[string]interface{})
	if !ok {
		return policy, apperr.Newf(apperr.KindValidation, "node %s: retry policy must be an object", node.ID)
	}
	if err := worker.DecodeConfig(data, &policy); err != nil {
		return policy, apperr.Wrap(apperr.KindValidation,
			fmt.Sprintf("node %s has an invalid retry policy", node.ID), err)
	}
	return policy, nil
}

// retryDelay computes the exponential backoff for the attempt that just
// failed. Missing policy fields fall back to the engine defaults.
func (e *Engine) retryDelay(policy models.RetryPolicy, attempt int) time.Duration {
	backoff := e.cfg.RetryBackoff
	if policy.BackoffMs > 0 {
		backoff = time.Duration(policy.BackoffMs) * time.Millisecond
	}
	multiplier := e.cfg.RetryMultiplier
	if policy.BackoffMultiplier >= 1 {
		multiplier = policy.BackoffMultiplier
	}
	maxBackoff := e.cfg.RetryMaxBackoff
	if policy.MaxBackoffMs > 0 {
		maxBackoff = time.Duration(policy.MaxBackoffMs) * time.Millisecond
	}

	delay := time.Duration(float64(backoff) * math.Pow(multiplier, float64(attempt-1)))
	if maxBackoff > 0 && delay > maxBackoff {
		delay = maxBackoff
	}
	return e.jitter(delay)
}

func (e *Engine) completeNode(ctx context.Context, st *runState, pn *compiler.PlanNode, output interface{}, started, finished time.Time) *Outcome {
	st.results[pn.Node.ID] = output
	st.lastExecuted = pn.Node.ID
	if pn.Node.Type == models.NodeTypeOutput {
		st.output = output
		st.hasOutput = true
	}

	if err := e.appendStep(ctx, st, pn, models.StepCompleted, output, nil, started, finished); err != nil {
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}
	if err := e.persistSnapshot(ctx, st, models.RunRunning, nil); err != nil {
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}

	e.logger.WithRunID(st.run.ID.String()).WithNodeID(pn.Node.ID).Debug("node completed",
		"step", st.stepCount,
		"duration_ms", finished.Sub(started).Milliseconds())
	e.emitNode(ctx, st, pn, models.EventNodeCompleted, models.StepCompleted, "")
	return nil
}

// failNode records the node's terminal failure and takes the run down
// with it.
func (e *Engine) failNode(ctx context.Context, st *runState, pn *compiler.PlanNode, nodeErr error, started, finished time.Time) *Outcome {
	msg := nodeErr.Error()
	if err := e.appendStep(ctx, st, pn, models.StepFailed, nil, &msg, started, finished); err != nil {
		e.logger.WithRunID(st.run.ID.String()).WithNodeID(pn.Node.ID).Error("failed to record failed step", "error", err)
	}
	e.emitNode(ctx, st, pn, models.EventNodeFailed, models.StepFailed, msg)
	return e.failRun(ctx, st, pn.Node.ID, nodeErr)
}

// failRun rolls back accumulated compensation and persists the terminal
// status. Persistence and compensation run on a cancel-proof context: a
// cancelled run still unwinds its side effects and records its end.
func (e *Engine) failRun(ctx context.Context, st *runState, nodeID string, runErr error) *Outcome {
	persistCtx := context.WithoutCancel(ctx)
	log := e.logger.WithRunID(st.run.ID.String())

	status := models.RunFailed
	if ctx.Err() != nil {
		status = models.RunCancelled
	}

	var summary *models.CompensationSummary
	if st.comp.Len() > 0 {
		log.Info("rolling back compensation plan", "entries", st.comp.Len())
		summary = e.compensator.Run(persistCtx, st.comp.Entries(), e.compensateAction)
	}

	recorded := &models.RunError{
		Code:    string(apperr.KindOf(runErr)),
		Message: runErr.Error(),
		NodeID:  nodeID,
	}
	if status == models.RunCancelled {
		recorded.Code = string(apperr.KindCancelled)
	}

	patch := repository.RunStatusPatch{
		Status:      status,
		Error:       recorded,
		EngineState: st.snapshot(nil),
		Now:         e.clock.Now(),
	}
	updated, err := e.runs.UpdateStatus(persistCtx, st.run.ID, patch)
	if err != nil {
		log.Error("failed to persist terminal run status", "status", status, "error", err)
	} else if updated == nil {
		log.Warn("run was already terminal, outcome not recorded", "status", status)
	}

	eventType := models.EventRunFailed
	if status == models.RunCancelled {
		eventType = models.EventRunCancelled
	}
	e.emitRun(persistCtx, st, eventType, status, recorded.Message, nil)

	log.Info("run finished", "status", status, "node_id", nodeID, "error", runErr)
	return &Outcome{RunID: st.run.ID, Status: status, Err: runErr, Compensation: summary}
}

func (e *Engine) completeRun(ctx context.Context, st *runState) *Outcome {
	persistCtx := context.WithoutCancel(ctx)
	log := e.logger.WithRunID(st.run.ID.String())

	output := st.runOutput()
	patch := repository.RunStatusPatch{
		Status:      models.RunCompleted,
		Output:      output,
		EngineState: st.snapshot(nil),
		Now:         e.clock.Now(),
	}

	updated, err := e.runs.UpdateStatus(persistCtx, st.run.ID, patch)
	if err != nil {
		// Side effects succeeded; do not compensate over a bookkeeping
		// failure.
		wrapped := apperr.Wrap(apperr.KindInternal, "failed to record run completion", err)
		log.Error("failed to record run completion", "error", err)
		return &Outcome{RunID: st.run.ID, Status: models.RunFailed, Err: wrapped}
	}
	if updated == nil {
		conflictErr := apperr.Newf(apperr.KindConflict, "run %s reached a terminal status concurrently", st.run.ID)
		log.Warn("run was already terminal, completion not recorded")
		return &Outcome{RunID: st.run.ID, Status: models.RunCancelled, Err: conflictErr}
	}

	e.emitRun(persistCtx, st, models.EventRunCompleted, models.RunCompleted, "", nil)
	log.Info("run completed", "steps", st.stepCount)
	return &Outcome{RunID: st.run.ID, Status: models.RunCompleted, Output: output}
}

func (e *Engine) compensateAction(ctx context.Context, action string, args map[string]interface{}) error {
	_, err := e.tools.Execute(ctx, action, args)
	return err
}

// appendStep assigns the next step number and records one node outcome.
func (e *Engine) appendStep(ctx context.Context, st *runState, pn *compiler.PlanNode, status models.StepStatus, output interface{}, errMsg *string, started, finished time.Time) error {
	st.stepCount++
	now := e.clock.Now()

	step := &models.WorkflowStep{
		ID:          e.newID(),
		RunID:       st.run.ID,
		NodeID:      pn.Node.ID,
		NodeType:    pn.Node.Type,
		StepNumber:  st.stepCount,
		Status:      status,
		Input:       pn.Node.Data,
		Output:      output,
		Error:       errMsg,
		StartedAt:   &started,
		CompletedAt: &finished,
		DurationMs:  finished.Sub(started).Milliseconds(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.steps.Append(ctx, step); err != nil {
		return fmt.Errorf("failed to append step %d: %w", step.StepNumber, err)
	}
	return nil
}

// persistSnapshot writes the run's status and full engine state in one
// guarded update. A nil row back means another writer already put the
// run into a terminal status.
func (e *Engine) persistSnapshot(ctx context.Context, st *runState, status models.RunStatus, pending *models.PendingApprovalState) error {
	patch := repository.RunStatusPatch{
		Status:      status,
		EngineState: st.snapshot(pending),
		Now:         e.clock.Now(),
	}

	updated, err := e.runs.UpdateStatus(ctx, st.run.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to persist run snapshot: %w", err)
	}
	if updated == nil {
		return apperr.Newf(apperr.KindConflict, "run %s reached a terminal status concurrently", st.run.ID)
	}
	st.run = updated
	return nil
}

// persistFailure converts a bookkeeping error into the run's terminal
// outcome. Concurrent-terminal conflicts stop the task quietly; anything
// else fails the run.
func (e *Engine) persistFailure(ctx context.Context, st *runState, nodeID string, err error) *Outcome {
	if apperr.IsKind(err, apperr.KindConflict) {
		e.logger.WithRunID(st.run.ID.String()).Warn("run state changed concurrently, stopping task", "error", err)
		return &Outcome{RunID: st.run.ID, Status: models.RunCancelled, Err: err}
	}
	return e.failRun(ctx, st, nodeID, apperr.Wrap(apperr.KindInternal, "failed to persist run progress", err))
}
