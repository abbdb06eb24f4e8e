package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/sdk"
)

// chat-completions wire types, OpenAI-compatible
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

// Gateway is the production sdk.ModelGateway speaking the OpenAI
// chat-completions protocol. Any OpenAI-compatible endpoint works through
// MODEL_BASE_URL.
type Gateway struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
	logger       sdk.Logger
}

// NewGateway creates a model gateway from config
func NewGateway(cfg config.ModelConfig, logger sdk.Logger) *Gateway {
	return &Gateway{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}
}

// GenerateText performs one chat completion. Transient provider problems
// (network, 429, 5xx) surface as model-failure so the node retry policy
// applies; auth and request shape problems do not retry.
func (g *Gateway) GenerateText(ctx context.Context, req sdk.GenerateRequest) (*sdk.GenerateResult, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode model request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create model request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindCancelled, "model request cancelled", ctx.Err())
		}
		return nil, apperr.Wrap(apperr.KindModelFailure, "model request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		message := fmt.Sprintf("model endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperr.New(apperr.KindModelFailure, message)
		}
		return nil, apperr.New(apperr.KindInternal, message)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindModelFailure, "failed to decode model response", err)
	}
	if parsed.Error != nil {
		return nil, apperr.Newf(apperr.KindModelFailure, "model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, apperr.New(apperr.KindModelFailure, "model returned no choices")
	}

	g.logger.Debug("model call completed",
		"model", model,
		"total_tokens", parsed.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return &sdk.GenerateResult{
		Text: parsed.Choices[0].Message.Content,
		Usage: sdk.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
