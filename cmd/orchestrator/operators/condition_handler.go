// Package operators implements the control-flow node handlers: condition
// branching, loop iteration, and parallel fan-out. They share the worker
// handler contract; loop and parallel drive their body nodes through the
// engine's BodyExecutor seam.
package operators

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/condition"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// DefaultBranch is the label selected when no case matches.
const DefaultBranch = "default"

// ConditionHandler evaluates a condition node and reports the chosen
// branch label. The executor skips successors whose inbound edge label
// does not match.
type ConditionHandler struct {
	evaluator *condition.Evaluator
	logger    sdk.Logger
}

// NewConditionHandler creates the condition node handler
func NewConditionHandler(evaluator *condition.Evaluator, logger sdk.Logger) *ConditionHandler {
	return &ConditionHandler{evaluator: evaluator, logger: logger}
}

func (h *ConditionHandler) Type() string {
	return models.NodeTypeCondition
}

type conditionCase struct {
	Label      string `mapstructure:"label"`
	Expression string `mapstructure:"expression"`
}

type conditionConfig struct {
	Expression string          `mapstructure:"expression"`
	Cases      []conditionCase `mapstructure:"cases"`
}

func (h *ConditionHandler) Execute(_ context.Context, ec *worker.ExecutionContext) (*worker.Result, error) {
	var cfg conditionConfig
	if err := worker.DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid condition node config", err)
	}

	branch, err := h.selectBranch(cfg, ec.Results)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("branch selected",
		"run_id", ec.RunID,
		"node_id", ec.Node.ID,
		"branch", branch)

	return &worker.Result{Output: map[string]interface{}{"branch": branch}}, nil
}

// selectBranch picks the label for the node's outcome. Multi-way nodes
// list cases evaluated in order with first match winning; a plain
// expression maps to the "true"/"false" pair. A predicate that fails to
// parse or evaluate is a fatal node error, never a silent default.
func (h *ConditionHandler) selectBranch(cfg conditionConfig, results map[string]interface{}) (string, error) {
	if len(cfg.Cases) > 0 {
		for i, cs := range cfg.Cases {
			if cs.Label == "" || cs.Expression == "" {
				return "", apperr.Newf(apperr.KindValidation, "condition case %d requires label and expression", i)
			}
			match, err := h.evaluator.Evaluate(cs.Expression, results)
			if err != nil {
				return "", apperr.Wrap(apperr.KindValidation, "invalid condition expression", err)
			}
			if match {
				return cs.Label, nil
			}
		}
		return DefaultBranch, nil
	}

	if cfg.Expression == "" {
		return "", apperr.New(apperr.KindValidation, "condition node requires an expression or cases")
	}
	match, err := h.evaluator.Evaluate(cfg.Expression, results)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid condition expression", err)
	}
	if match {
		return "true", nil
	}
	return "false", nil
}
