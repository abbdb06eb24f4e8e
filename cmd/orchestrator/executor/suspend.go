package executor

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
)

// suspend parks the run task until the approval resolves. The snapshot
// with the pending marker is persisted before anything else, so a crash
// while parked leaves a run that any process can resume. The suspended
// outcome is delivered to waiters before parking; a nil return means the
// approval was granted and the walk continues.
func (e *Engine) suspend(ctx context.Context, st *runState, pn *compiler.PlanNode, susp *worker.Suspension) *Outcome {
	state := susp.State
	log := e.logger.WithRunID(st.run.ID.String()).WithNodeID(pn.Node.ID)

	if err := e.persistSnapshot(ctx, st, models.RunSuspended, &state); err != nil {
		e.approvals.Reject(state.ApprovalID, "internal error")
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}

	log.Info("run suspended awaiting approval",
		"approval_id", state.ApprovalID,
		"deadline", state.Deadline)
	e.emitRun(ctx, st, models.EventRunSuspended, models.RunSuspended, "", map[string]interface{}{
		"approvalId": state.ApprovalID,
		"nodeId":     state.NodeID,
		"message":    state.Message,
	})

	e.deliver(st.run.ID, Outcome{
		RunID:      st.run.ID,
		Status:     models.RunSuspended,
		ApprovalID: state.ApprovalID,
	})

	// A parked run holds no slot; an approval can take hours and must
	// not starve other runs. The slot is re-taken before the walk
	// continues, queueing behind active runs if necessary.
	e.release()
	decision, cancelled := e.await(ctx, &state, susp.Signal)
	_ = e.acquire(context.WithoutCancel(ctx))

	if cancelled {
		err := apperr.New(apperr.KindCancelled, "run cancelled while awaiting approval")
		return e.failNode(ctx, st, pn, err, state.RequestedAt, e.clock.Now())
	}
	return e.applyDecision(ctx, st, pn, decision)
}

// await blocks until a decision, deadline expiry, or run cancellation.
// Expiry travels through the coordinator like any other decision, so a
// racing human decision wins at most once and the signal stays
// single-assignment.
func (e *Engine) await(ctx context.Context, state *models.PendingApprovalState, signal <-chan approval.Decision) (approval.Decision, bool) {
	if state.Deadline != nil {
		waitCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if e.clock.Sleep(waitCtx, state.Deadline.Sub(e.clock.Now())) == nil {
				e.approvals.Expire(state.ApprovalID)
			}
		}()
	}

	select {
	case decision := <-signal:
		return decision, false
	case <-ctx.Done():
		e.approvals.Reject(state.ApprovalID, "cancelled")
		return approval.Decision{}, true
	}
}

// applyDecision turns an approval decision into the approval node's
// terminal step. Approved: the node completes with the decision payload
// and the walk continues (nil return). Rejected or expired: the node
// fails and takes the run down.
func (e *Engine) applyDecision(ctx context.Context, st *runState, pn *compiler.PlanNode, decision approval.Decision) *Outcome {
	pending := pendingApproval(st.run)
	started := e.clock.Now()
	if pending != nil {
		started = pending.RequestedAt
	}

	// Move the run back to running before recording anything. The guard
	// on this update is what makes a stale resume against an already
	// terminal run die here, before it can append a duplicate step.
	if err := e.persistSnapshot(ctx, st, models.RunRunning, pending); err != nil {
		return e.persistFailure(ctx, st, pn.Node.ID, err)
	}

	finished := e.clock.Now()

	if decision.Approved {
		output, err := models.NormalizeJSON(worker.DecisionOutput(decision))
		if err != nil {
			return e.failNode(ctx, st, pn,
				apperr.Wrap(apperr.KindInternal, "approval decision is not JSON-encodable", err),
				started, finished)
		}

		e.logger.WithRunID(st.run.ID.String()).WithNodeID(pn.Node.ID).Info("approval granted, resuming run",
			"approved_by", decision.ApprovedBy)
		e.emitRun(ctx, st, models.EventRunResumed, models.RunRunning, "", nil)
		return e.completeNode(ctx, st, pn, output, started, finished)
	}

	var err error
	switch {
	case decision.Reason == "timeout":
		err = apperr.New(apperr.KindApprovalTimeout, "approval timed out")
	case decision.Reason != "":
		err = apperr.Newf(apperr.KindApprovalRejected, "approval rejected: %s", decision.Reason)
	default:
		err = apperr.New(apperr.KindApprovalRejected, "approval rejected")
	}
	return e.failNode(ctx, st, pn, err, started, finished)
}
