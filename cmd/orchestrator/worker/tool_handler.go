package worker

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// ToolHandler executes tool nodes against the registry and appends
// compensation entries for tools that declare an undo action.
type ToolHandler struct {
	executor sdk.ToolExecutor
	resolver *resolver.Resolver
	logger   sdk.Logger
}

// NewToolHandler creates the tool node handler
func NewToolHandler(executor sdk.ToolExecutor, res *resolver.Resolver, logger sdk.Logger) *ToolHandler {
	return &ToolHandler{
		executor: executor,
		resolver: res,
		logger:   logger,
	}
}

func (h *ToolHandler) Type() string {
	return models.NodeTypeTool
}

type toolConfig struct {
	ToolName string                 `mapstructure:"toolName"`
	Args     map[string]interface{} `mapstructure:"args"`
}

func (h *ToolHandler) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg toolConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid tool node config", err)
	}
	if cfg.ToolName == "" {
		return nil, apperr.New(apperr.KindValidation, "tool node requires toolName")
	}

	args := h.resolver.ResolveMap(cfg.Args, ec.Results)
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := h.executor.Execute(ctx, cfg.ToolName, args)
	if err != nil {
		return nil, err
	}

	// Undo entries are appended only for tools that completed; the plan
	// replays them in reverse if the run later fails
	if def, ok := h.executor.Definition(cfg.ToolName); ok && def.Compensation != nil {
		compArgs := args
		if def.Compensation.BuildArgs != nil {
			compArgs = def.Compensation.BuildArgs(args, result)
		}
		ec.Compensation.Add(models.CompensationEntry{
			NodeID:           ec.Node.ID,
			ToolName:         cfg.ToolName,
			CompensateAction: def.Compensation.Action,
			CompensateArgs:   compArgs,
		})
		h.logger.Debug("compensation entry recorded",
			"run_id", ec.RunID,
			"node_id", ec.Node.ID,
			"action", def.Compensation.Action)
	}

	return &Result{Output: result}, nil
}
