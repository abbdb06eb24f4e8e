package executor

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
)

// bodyRunner lets loop and parallel handlers execute their body nodes
// through the engine's dispatch machinery. Body nodes produce no step
// records of their own: their outcomes live inside the controller's
// aggregated output, and the controller gets the single step record.
type bodyRunner struct {
	engine *Engine
	state  *runState
}

func (b *bodyRunner) BodyOrder(controllerID string) []string {
	return b.state.plan.BodySets[controllerID]
}

// RunBodyNode executes one body node against a forked scope, with the
// same retry, timeout, and output-normalization rules as top-level
// nodes. Compensation entries land on the shared run plan.
func (b *bodyRunner) RunBodyNode(ctx context.Context, nodeID string, scope map[string]interface{}) (interface{}, error) {
	pn, ok := b.state.plan.Nodes[nodeID]
	if !ok {
		return nil, apperr.Newf(apperr.KindInternal, "body node %s is not in the plan", nodeID)
	}

	ec := &worker.ExecutionContext{
		RunID:        b.state.run.ID.String(),
		Node:         pn.Node,
		Results:      scope,
		Compensation: b.state.comp,
	}
	// Nested controllers iterate through the same runner.
	if pn.Node.Type == models.NodeTypeLoop || pn.Node.Type == models.NodeTypeParallel {
		ec.Body = b
	}

	res, err := b.engine.runAttempts(ctx, b.state, pn, ec)
	if err != nil {
		return nil, err
	}
	if res.Suspension != nil {
		return nil, apperr.Newf(apperr.KindValidation, "node %s cannot suspend inside a controller body", nodeID)
	}
	return res.Output, nil
}
