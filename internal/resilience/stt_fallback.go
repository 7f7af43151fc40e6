package resilience

import (
	"context"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with failover across several
// transcription backends, each behind its own circuit breaker. The whole
// upload is replayed against the next backend when one fails.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs audio through the first healthy transcriber.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, audio, language)
	})
}

// Status reports each backend's breaker state.
func (f *STTFallback) Status() []BackendStatus { return f.group.Status() }
