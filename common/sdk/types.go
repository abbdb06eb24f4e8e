package sdk

import "context"

// Logger is the minimal logging surface packages accept when they do
// not want a hard dependency on common/logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// ToolFunc executes one tool call. Args are interpolated before
// dispatch; the result must be JSON-encodable.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// CompensationSpec declares the undo action for a tool. BuildArgs may
// derive fresh undo-args from the forward call's args and result; when
// nil the forward args are reused.
type CompensationSpec struct {
	Action    string
	BuildArgs func(args map[string]any, result any) map[string]any
}

// ToolDefinition is one catalog entry in a tool registry
type ToolDefinition struct {
	Name         string
	Description  string
	Handler      ToolFunc
	Compensation *CompensationSpec
}

// ToolExecutor is the registry surface the engine dispatches through
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
	Definition(name string) (*ToolDefinition, bool)
}

// GenerateRequest is one model invocation
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Usage reports token accounting for a model call
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerateResult is the model's reply
type GenerateResult struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// ModelGateway is the AI provider surface consumed by ai-step nodes
type ModelGateway interface {
	GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
