package resilience

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/voicecart/pkg/provider/llm"
)

// ErrEmptyCompletion is recorded against a backend that answered with no
// content. It counts toward that backend's breaker and moves the request on
// to the next fallback.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// LLMFallback implements [llm.Provider] with failover across several
// backends, each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]

	// model of the backend that produced the latest successful completion.
	model atomic.Pointer[string]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy provider whose reply has content.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyCompletion
		}
		model := p.ModelID()
		f.model.Store(&model)
		return resp, nil
	})
}

// ModelID returns the model that served the latest completion, or the
// primary's model before any call succeeded.
func (f *LLMFallback) ModelID() string {
	if m := f.model.Load(); m != nil {
		return *m
	}
	return f.group.entries[0].value.ModelID()
}

// Status reports each backend's breaker state.
func (f *LLMFallback) Status() []BackendStatus { return f.group.Status() }
