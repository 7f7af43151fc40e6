package stt_test

import (
	"testing"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

func TestAudioExt(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"voice.webm", ".webm"},
		{"VOICE.WAV", ".wav"},
		{"clip.final.Mp3", ".mp3"},
		{"noext", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (stt.Audio{Filename: tt.filename}).Ext(); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
