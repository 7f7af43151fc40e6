package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
	"github.com/MrWong99/voicecart/pkg/provider/stt/whisper"
)

func TestNewNative_BadModelPath(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/models/ggml-base.en.bin"} {
		if p, err := whisper.NewNative(path); err == nil {
			p.Close()
			t.Errorf("NewNative(%q): expected error", path)
		}
	}
}

// Runs only with a real ggml model, e.g.
// WHISPER_MODEL_PATH=models/ggml-base.en.bin go test ./pkg/provider/stt/whisper
func TestNativeTranscribe_RejectsBadInput(t *testing.T) {
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(path, whisper.WithNativeLanguage("en"), whisper.WithNativeThreads(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	tests := []struct {
		name  string
		audio stt.Audio
		want  error
	}{
		{"empty upload", stt.Audio{Filename: "order.wav"}, stt.ErrEmptyAudio},
		{"browser recording", stt.Audio{Data: []byte("webm"), Filename: "order.webm"}, whisper.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Transcribe(context.Background(), tt.audio, ""); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
