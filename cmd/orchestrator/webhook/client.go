package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weftlabs/weft/common/sdk"
)

// URLScreener validates a destination before any request is issued.
// security.URLValidator is the production implementation.
type URLScreener interface {
	Validate(rawURL string) error
}

// Request describes one outbound webhook call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    interface{}
}

// Response is the observed result of a webhook call.
type Response struct {
	Status   int
	Headers  map[string]string
	Body     interface{}
	Duration time.Duration
}

// Client issues outbound HTTP requests for webhook nodes and the
// http.request tool. Every destination passes SSRF screening before the
// request is built.
type Client struct {
	httpClient *http.Client
	validator  URLScreener
	logger     sdk.Logger
}

// NewClient creates a webhook client
func NewClient(timeout time.Duration, validator URLScreener, logger sdk.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		validator:  validator,
		logger:     logger,
	}
}

// Do executes the request. The response body parses as JSON when possible
// and falls back to the raw string.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if err := c.validator.Validate(req.URL); err != nil {
		return nil, fmt.Errorf("url rejected: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		switch b := req.Body.(type) {
		case string:
			body = []byte(b)
		case []byte:
			body = b
		default:
			var err error
			body, err = json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", "weft/1.0")
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// JSON responses come back structured, everything else as a string
	var parsed interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	c.logger.Info("webhook request completed",
		"url", req.URL,
		"method", method,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	return &Response{
		Status:   resp.StatusCode,
		Headers:  headers,
		Body:     parsed,
		Duration: duration,
	}, nil
}

// Success reports whether the status code is in the 2xx range.
func (r *Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}
