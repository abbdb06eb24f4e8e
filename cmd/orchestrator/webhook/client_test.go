package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type allowAll struct{}

func (allowAll) Validate(string) error { return nil }

type denyAll struct{}

func (denyAll) Validate(string) error { return errors.New("blocked") }

func TestClientDoJSONResponse(t *testing.T) {
	var gotMethod, gotHeader string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "abc-1"})
	}))
	defer server.Close()

	client := NewClient(5*time.Second, allowAll{}, nopLogger{})
	resp, err := client.Do(context.Background(), Request{
		URL:     server.URL,
		Method:  http.MethodPost,
		Headers: map[string]string{"X-Token": "secret"},
		Body:    map[string]interface{}{"name": "weft"},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Token header = %q, want %q", gotHeader, "secret")
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(gotBody, &sent); err != nil || sent["name"] != "weft" {
		t.Errorf("request body = %s, want JSON with name=weft", gotBody)
	}

	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if !resp.Success() {
		t.Error("Success() = false for 201")
	}

	body, ok := resp.Body.(map[string]interface{})
	if !ok || body["id"] != "abc-1" {
		t.Errorf("Body = %v, want parsed JSON object", resp.Body)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers = %v, want content type captured", resp.Headers)
	}
}

func TestClientDoTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream unavailable")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, allowAll{}, nopLogger{})
	resp, err := client.Do(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	// Non-2xx is not a transport error; the handler decides what to do
	if resp.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", resp.Status)
	}
	if resp.Success() {
		t.Error("Success() = true for 502")
	}
	if resp.Body != "upstream unavailable" {
		t.Errorf("Body = %v, want raw string fallback", resp.Body)
	}
}

func TestClientDoDefaultsToGET(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		io.WriteString(w, "{}")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, allowAll{}, nopLogger{})
	if _, err := client.Do(context.Background(), Request{URL: server.URL}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", gotMethod)
	}
}

func TestClientDoRejectsScreenedURL(t *testing.T) {
	client := NewClient(5*time.Second, denyAll{}, nopLogger{})

	_, err := client.Do(context.Background(), Request{URL: "http://169.254.169.254/"})
	if err == nil {
		t.Fatal("Do succeeded for screened URL")
	}
}

func TestClientDoStringBodyPassedVerbatim(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, "{}")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, allowAll{}, nopLogger{})
	_, err := client.Do(context.Background(), Request{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   `{"already":"encoded"}`,
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(gotBody) != `{"already":"encoded"}` {
		t.Errorf("body = %s, want verbatim string", gotBody)
	}
}
