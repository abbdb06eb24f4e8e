package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// AIHandler executes ai-step nodes through the model gateway. When the node
// declares an output schema the call runs in JSON mode and the reply must
// parse and validate; a miss is a retryable model-failure because another
// sample often fixes it.
type AIHandler struct {
	gateway  sdk.ModelGateway
	resolver *resolver.Resolver
	logger   sdk.Logger
}

// NewAIHandler creates the ai-step node handler
func NewAIHandler(gateway sdk.ModelGateway, res *resolver.Resolver, logger sdk.Logger) *AIHandler {
	return &AIHandler{
		gateway:  gateway,
		resolver: res,
		logger:   logger,
	}
}

func (h *AIHandler) Type() string {
	return models.NodeTypeAIStep
}

type aiConfig struct {
	Prompt       string                 `mapstructure:"prompt"`
	SystemPrompt string                 `mapstructure:"systemPrompt"`
	Model        string                 `mapstructure:"model"`
	Temperature  float64                `mapstructure:"temperature"`
	MaxTokens    int                    `mapstructure:"maxTokens"`
	OutputSchema map[string]interface{} `mapstructure:"outputSchema"`
}

func (h *AIHandler) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg aiConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid ai-step node config", err)
	}
	if cfg.Prompt == "" {
		return nil, apperr.New(apperr.KindValidation, "ai-step node requires a prompt")
	}

	prompt := h.resolver.Interpolate(cfg.Prompt, ec.Results)
	system := h.resolver.Interpolate(cfg.SystemPrompt, ec.Results)

	jsonMode := len(cfg.OutputSchema) > 0
	if jsonMode {
		schemaJSON, err := json.Marshal(cfg.OutputSchema)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "invalid output schema", err)
		}
		directive := fmt.Sprintf("Respond with valid JSON matching this schema:\n%s", schemaJSON)
		if system == "" {
			system = directive
		} else {
			system = system + "\n\n" + directive
		}
	}

	result, err := h.gateway.GenerateText(ctx, sdk.GenerateRequest{
		Model:       cfg.Model,
		System:      system,
		Prompt:      prompt,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return nil, err
	}

	if !jsonMode {
		return &Result{Output: map[string]interface{}{
			"text":  result.Text,
			"usage": result.Usage,
		}}, nil
	}

	parsed, err := h.validateAgainstSchema(result.Text, cfg.OutputSchema)
	if err != nil {
		return nil, err
	}
	return &Result{Output: parsed}, nil
}

// validateAgainstSchema parses the model reply and checks it against the
// node's declared output schema.
func (h *AIHandler) validateAgainstSchema(text string, outputSchema map[string]interface{}) (interface{}, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindModelFailure, "model reply is not valid JSON", err)
	}

	schemaBytes, err := json.Marshal(outputSchema)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid output schema", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid output schema", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to load output schema", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to compile output schema", err)
	}

	if err := schema.Validate(parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindModelFailure, "model reply does not match output schema", err)
	}

	return parsed, nil
}

// extractJSON strips a markdown code fence when the model wraps its reply
// in one.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
