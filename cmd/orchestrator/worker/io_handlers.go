package worker

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/common/models"
)

// InputHandler surfaces the run input as the input node's output so later
// nodes can reference it by node id as well as by the reserved "input" key.
type InputHandler struct{}

// NewInputHandler creates the input node handler
func NewInputHandler() *InputHandler {
	return &InputHandler{}
}

func (h *InputHandler) Type() string {
	return models.NodeTypeInput
}

func (h *InputHandler) Execute(_ context.Context, ec *ExecutionContext) (*Result, error) {
	return &Result{Output: ec.Results["input"]}, nil
}

// OutputHandler resolves the output node's bindings; the engine takes the
// designated output node's result as the run output.
type OutputHandler struct {
	resolver *resolver.Resolver
}

// NewOutputHandler creates the output node handler
func NewOutputHandler(res *resolver.Resolver) *OutputHandler {
	return &OutputHandler{resolver: res}
}

func (h *OutputHandler) Type() string {
	return models.NodeTypeOutput
}

type outputConfig struct {
	Bindings map[string]interface{} `mapstructure:"bindings"`
}

func (h *OutputHandler) Execute(_ context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg outputConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Bindings) == 0 {
		return &Result{Output: nil}, nil
	}

	resolved := h.resolver.ResolveMap(cfg.Bindings, ec.Results)

	// A lone "value" binding unwraps so simple workflows return the bare
	// value instead of {"value": ...}
	if len(resolved) == 1 {
		if value, ok := resolved["value"]; ok {
			return &Result{Output: value}, nil
		}
	}

	return &Result{Output: resolved}, nil
}
