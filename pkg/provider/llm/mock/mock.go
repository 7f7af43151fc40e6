// Package mock provides a test double for the llm.Provider interface.
//
// Set CompleteResponse for a fixed reply, or CompleteFunc to derive the reply
// from the request:
//
//	p := &mock.Provider{
//	    CompleteFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
//	        return &llm.CompletionResponse{Content: intents[mock.LastUserMessage(req)]}, nil
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicecart/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, when set, produces every reply. It takes precedence over
	// CompleteResponse and CompleteErr.
	CompleteFunc func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned by Complete when CompleteFunc is nil.
	// A nil response with a nil CompleteErr yields (nil, nil).
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// Model is returned by ModelID.
	Model string

	CompleteCalls []CompleteCall
}

// Complete records the call and returns the configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return resp, err
}

// ModelID returns Model.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Model
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// LastUserMessage returns the content of the last "user" message in req.
func LastUserMessage(req llm.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

var _ llm.Provider = (*Provider)(nil)
