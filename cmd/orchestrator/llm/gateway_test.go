package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/sdk"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func newTestGateway(baseURL string) *Gateway {
	return NewGateway(config.ModelConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		DefaultModel: "gpt-4o-mini",
		Timeout:      5 * time.Second,
	}, nopLogger{})
}

func TestGenerateText(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "summarized"}}},
			Usage:   chatUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		})
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	result, err := g.GenerateText(context.Background(), sdk.GenerateRequest{
		System:      "you are terse",
		Prompt:      "summarize this",
		Temperature: 0.2,
		MaxTokens:   128,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q, want bearer key", gotAuth)
	}

	// Default model fills in when the request names none
	if gotPayload.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default", gotPayload.Model)
	}
	if len(gotPayload.Messages) != 2 || gotPayload.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotPayload.Messages)
	}
	if gotPayload.ResponseFormat == nil || gotPayload.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotPayload.ResponseFormat)
	}

	if result.Text != "summarized" {
		t.Errorf("Text = %q, want %q", result.Text, "summarized")
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", result.Usage.TotalTokens)
	}
}

func TestGenerateTextErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind apperr.Kind
	}{
		{"rate limited retries", http.StatusTooManyRequests, apperr.KindModelFailure},
		{"server error retries", http.StatusInternalServerError, apperr.KindModelFailure},
		{"bad auth does not retry", http.StatusUnauthorized, apperr.KindInternal},
		{"bad request does not retry", http.StatusBadRequest, apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			g := newTestGateway(server.URL)
			_, err := g.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("GenerateText succeeded on error status")
			}
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestGenerateTextEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	_, err := g.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "x"})
	if !apperr.IsKind(err, apperr.KindModelFailure) {
		t.Errorf("kind = %v, want model-failure", apperr.KindOf(err))
	}
}

func TestFakeGatewayScript(t *testing.T) {
	fake := NewFakeGateway().Script("first").ScriptFailure("burst").Script("second")

	r1, err := fake.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "a"})
	if err != nil || r1.Text != "first" {
		t.Fatalf("first call = %v, %v", r1, err)
	}

	_, err = fake.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "b"})
	if !apperr.IsKind(err, apperr.KindModelFailure) {
		t.Fatalf("second call error kind = %v, want model-failure", apperr.KindOf(err))
	}

	r3, err := fake.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "c"})
	if err != nil || r3.Text != "second" {
		t.Fatalf("third call = %v, %v", r3, err)
	}

	// Script exhausted: default answer
	r4, _ := fake.GenerateText(context.Background(), sdk.GenerateRequest{Prompt: "d"})
	if r4.Text != "ok" {
		t.Errorf("default = %q, want ok", r4.Text)
	}

	if fake.CallCount() != 4 {
		t.Errorf("CallCount() = %d, want 4", fake.CallCount())
	}
	if calls := fake.Calls(); calls[0].Prompt != "a" || calls[3].Prompt != "d" {
		t.Errorf("Calls() = %+v, want recorded prompts", calls)
	}
}
