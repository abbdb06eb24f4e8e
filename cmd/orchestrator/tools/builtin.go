package tools

import (
	"context"
	"time"

	"github.com/weftlabs/weft/cmd/orchestrator/webhook"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/sdk"
)

// RegisterBuiltins installs the stock tool catalog.
func RegisterBuiltins(r *Registry, clock sdk.Clock, client *webhook.Client) error {
	builtins := []*sdk.ToolDefinition{
		{
			Name:        "echo",
			Description: "Returns its arguments unchanged",
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				return args, nil
			},
		},
		{
			Name:        "delay.probe",
			Description: "Sleeps for ms milliseconds, cancellation-aware",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				ms, ok := asMillis(args["ms"])
				if !ok || ms < 0 {
					return nil, apperr.New(apperr.KindValidation, "delay.probe requires a non-negative ms argument")
				}
				if err := clock.Sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
					return nil, err
				}
				return map[string]any{"sleptMs": ms}, nil
			},
		},
		{
			Name:        "http.request",
			Description: "Issues an HTTP request through the screened webhook client",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				url, _ := args["url"].(string)
				if url == "" {
					return nil, apperr.New(apperr.KindValidation, "http.request requires a url argument")
				}
				method, _ := args["method"].(string)

				headers := make(map[string]string)
				if raw, ok := args["headers"].(map[string]any); ok {
					for key, value := range raw {
						if s, ok := value.(string); ok {
							headers[key] = s
						}
					}
				}

				resp, err := client.Do(ctx, webhook.Request{
					URL:     url,
					Method:  method,
					Headers: headers,
					Body:    args["body"],
				})
				if err != nil {
					return nil, err
				}

				return map[string]any{
					"status":  resp.Status,
					"headers": resp.Headers,
					"body":    resp.Body,
				}, nil
			},
		},
	}

	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func asMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
