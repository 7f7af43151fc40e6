package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voicecart/internal/config"
	"github.com/MrWong99/voicecart/pkg/provider/embeddings"
	embmock "github.com/MrWong99/voicecart/pkg/provider/embeddings/mock"
	"github.com/MrWong99/voicecart/pkg/provider/llm"
	llmmock "github.com/MrWong99/voicecart/pkg/provider/llm/mock"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicecart/pkg/provider/stt/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{Model: e.Model}, nil
	})
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Text: "add milk"}, nil
	})
	reg.RegisterEmbeddings("broken", func(config.ProviderEntry) (embeddings.Provider, error) {
		return nil, errors.New("no api key")
	})
	reg.RegisterEmbeddings("mock", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 2}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.ModelID() != "test-model" {
		t.Errorf("ModelID() = %q", p.ModelID())
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}

	_, err = reg.CreateSTT(config.ProviderEntry{Name: "deepgram"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateEmbeddings(config.ProviderEntry{Name: "broken"})
	if err == nil || errors.Is(err, config.ErrProviderNotRegistered) || err.Error() != `config: create embeddings/"broken": no api key` {
		t.Errorf("err = %v, want the wrapped factory error", err)
	}

	names := reg.Names()
	if !slices.Equal(names["embeddings"], []string{"broken", "mock"}) {
		t.Errorf("Names()[embeddings] = %v", names["embeddings"])
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"language":   "en",
		"dimensions": 384,
		"threads":    4.0,
		"bogus":      []string{"x"},
	}}
	if e.OptString("language") != "en" || e.OptString("dimensions") != "" {
		t.Errorf("OptString mismatch")
	}
	if e.OptInt("dimensions") != 384 || e.OptInt("threads") != 4 || e.OptInt("bogus") != 0 || e.OptInt("absent") != 0 {
		t.Errorf("OptInt mismatch")
	}
	var empty config.ProviderEntry
	if empty.OptString("x") != "" || empty.OptInt("x") != 0 {
		t.Errorf("nil options must yield zero values")
	}
}
