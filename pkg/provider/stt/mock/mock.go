// Package mock provides a test double for the stt.Transcriber interface.
//
//	tr := &mock.Transcriber{Text: "add two apples"}
//	text, _ := tr.Transcribe(ctx, audio, "en")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	Ctx      context.Context
	Audio    stt.Audio
	Language string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (m *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: audio, Language: language})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}

// Calls returns a copy of the recorded calls.
func (m *Transcriber) Calls() []TranscribeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TranscribeCall, len(m.TranscribeCalls))
	copy(out, m.TranscribeCalls)
	return out
}

// Reset clears all recorded calls.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
