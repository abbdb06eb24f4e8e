package worker

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compensation"
	"github.com/weftlabs/weft/common/models"
)

// BodyExecutor lets controller handlers (loop, parallel) run their body
// nodes through the engine's machinery without owning it.
type BodyExecutor interface {
	// RunBodyNode executes a single body node against scope and returns
	// its output. The scope is the resolution context for the node's
	// bindings; outer step results stay visible through it.
	RunBodyNode(ctx context.Context, nodeID string, scope map[string]interface{}) (interface{}, error)
	// BodyOrder returns a controller's body node ids in execution order.
	BodyOrder(controllerID string) []string
}

// ExecutionContext carries the per-node state a handler may need.
type ExecutionContext struct {
	RunID   string
	Node    models.Node
	Results map[string]interface{}
	// Compensation collects undo entries appended by tool executions.
	Compensation *compensation.Plan
	// Body is set by the engine for loop and parallel controllers.
	Body BodyExecutor
}

// Suspension asks the engine to park the run until an approval decision.
type Suspension struct {
	State  models.PendingApprovalState
	Signal <-chan approval.Decision
}

// Result is a handler's outcome: an output value, or a suspension request.
type Result struct {
	Output     interface{}
	Suspension *Suspension
}

// Handler executes one node type.
type Handler interface {
	Type() string
	Execute(ctx context.Context, ec *ExecutionContext) (*Result, error)
}

// DecodeConfig maps a node's data object onto a typed config struct.
func DecodeConfig(data map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("failed to decode node config: %w", err)
	}
	return nil
}
