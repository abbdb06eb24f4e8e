package executor

import (
	"context"
	"encoding/json"

	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/common/models"
)

// Event delivery is best-effort: a full bus or a marshalling problem is
// logged and never fails the run.

func (e *Engine) emitRun(ctx context.Context, st *runState, typ models.EventType, status models.RunStatus, errMsg string, payload map[string]interface{}) {
	e.publish(ctx, &models.RunEvent{
		Type:       typ,
		RunID:      st.run.ID.String(),
		WorkflowID: st.run.WorkflowID.String(),
		UserID:     eventUser(st.run),
		Status:     string(status),
		Error:      errMsg,
		Timestamp:  e.clock.Now(),
		Payload:    payload,
	})
}

func (e *Engine) emitNode(ctx context.Context, st *runState, pn *compiler.PlanNode, typ models.EventType, status models.StepStatus, errMsg string) {
	stepNumber := st.stepCount
	if typ == models.EventNodeStarted {
		stepNumber = st.stepCount + 1
	}

	e.publish(ctx, &models.RunEvent{
		Type:       typ,
		RunID:      st.run.ID.String(),
		WorkflowID: st.run.WorkflowID.String(),
		UserID:     eventUser(st.run),
		NodeID:     pn.Node.ID,
		NodeType:   pn.Node.Type,
		StepNumber: stepNumber,
		Status:     string(status),
		Error:      errMsg,
		Timestamp:  e.clock.Now(),
	})
}

func eventUser(run *models.WorkflowRun) string {
	if run.UserID == nil {
		return ""
	}
	return *run.UserID
}

func (e *Engine) publish(ctx context.Context, event *models.RunEvent) {
	if e.bus == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("failed to encode run event", "type", event.Type, "run_id", event.RunID, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, models.TopicRunEvents, event.RunID, data); err != nil {
		e.logger.Warn("failed to publish run event", "type", event.Type, "run_id", event.RunID, "error", err)
	}
}
