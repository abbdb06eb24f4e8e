package worker

import (
	"context"

	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/cmd/orchestrator/webhook"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// WebhookHandler issues an outbound HTTP request for webhook nodes.
type WebhookHandler struct {
	client   *webhook.Client
	resolver *resolver.Resolver
	logger   sdk.Logger
}

// NewWebhookHandler creates the webhook node handler
func NewWebhookHandler(client *webhook.Client, res *resolver.Resolver, logger sdk.Logger) *WebhookHandler {
	return &WebhookHandler{
		client:   client,
		resolver: res,
		logger:   logger,
	}
}

func (h *WebhookHandler) Type() string {
	return models.NodeTypeWebhook
}

type webhookConfig struct {
	URL         string            `mapstructure:"url"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Body        interface{}       `mapstructure:"body"`
	AllowNon2xx bool              `mapstructure:"allowNon2xx"`
}

func (h *WebhookHandler) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg webhookConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid webhook node config", err)
	}
	if cfg.URL == "" {
		return nil, apperr.New(apperr.KindValidation, "webhook node requires a url")
	}

	url := h.resolver.Interpolate(cfg.URL, ec.Results)

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = h.resolver.Interpolate(value, ec.Results)
	}

	body := h.resolver.Resolve(cfg.Body, ec.Results)

	resp, err := h.client.Do(ctx, webhook.Request{
		URL:     url,
		Method:  cfg.Method,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindToolFailure, "webhook request failed", err)
	}

	if !resp.Success() && !cfg.AllowNon2xx {
		return nil, apperr.Newf(apperr.KindToolFailure, "webhook returned status %d", resp.Status)
	}

	return &Result{Output: map[string]interface{}{
		"status":  resp.Status,
		"headers": resp.Headers,
		"body":    resp.Body,
	}}, nil
}
