package llm

import (
	"context"
	"sync"

	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/sdk"
)

type fakeReply struct {
	text string
	err  error
}

// FakeGateway is a scriptable sdk.ModelGateway for tests. Scripted replies
// are consumed in order; once the script is exhausted every call answers
// with Default. All calls are recorded for assertions.
type FakeGateway struct {
	mu      sync.Mutex
	queue   []fakeReply
	calls   []sdk.GenerateRequest
	Default string
}

// NewFakeGateway creates a fake gateway answering "ok" by default
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Default: "ok"}
}

// Script queues a successful reply. Chainable.
func (f *FakeGateway) Script(text string) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeReply{text: text})
	return f
}

// ScriptError queues a failing reply. Chainable.
func (f *FakeGateway) ScriptError(err error) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeReply{err: err})
	return f
}

// ScriptFailure queues a retryable model-failure with the given message.
func (f *FakeGateway) ScriptFailure(message string) *FakeGateway {
	return f.ScriptError(apperr.New(apperr.KindModelFailure, message))
}

// GenerateText answers from the script, or with Default when exhausted.
func (f *FakeGateway) GenerateText(ctx context.Context, req sdk.GenerateRequest) (*sdk.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "model request cancelled", err)
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	reply := fakeReply{text: f.Default}
	if len(f.queue) > 0 {
		reply = f.queue[0]
		f.queue = f.queue[1:]
	}
	f.mu.Unlock()

	if reply.err != nil {
		return nil, reply.err
	}

	promptTokens := (len(req.System) + len(req.Prompt)) / 4
	completionTokens := len(reply.text) / 4
	return &sdk.GenerateResult{
		Text: reply.text,
		Usage: sdk.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// Calls returns a copy of every recorded request.
func (f *FakeGateway) Calls() []sdk.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sdk.GenerateRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of GenerateText invocations.
func (f *FakeGateway) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
