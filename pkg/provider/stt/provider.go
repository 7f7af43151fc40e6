// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber turns one complete recorded utterance into text. The audio
// arrives as the raw bytes of an uploaded container file (webm, wav, mp3 or
// m4a); each backend decides whether it forwards the container as-is or
// decodes it locally first.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyAudio is returned by Transcribe when Audio.Data is empty.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Audio is a single recorded utterance as uploaded by a client.
type Audio struct {
	// Data holds the raw file bytes, container headers included.
	Data []byte

	// Filename is the client-supplied file name. Its extension is the only
	// reliable format hint for containers without magic bytes.
	Filename string

	// ContentType is the MIME type reported by the client, if any.
	ContentType string
}

// Ext returns the lower-cased file extension of Filename including the dot,
// or "" when there is none.
func (a Audio) Ext() string {
	return strings.ToLower(filepath.Ext(a.Filename))
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe returns the recognised text for audio. language is a short
	// language code such as "en"; an empty string lets the backend detect it
	// where supported. Returns ErrEmptyAudio for empty input.
	Transcribe(ctx context.Context, audio Audio, language string) (string, error)
}
