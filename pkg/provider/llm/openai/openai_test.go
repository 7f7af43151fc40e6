package openai

import (
	"testing"

	"github.com/MrWong99/voicecart/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{role: "system", check: func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfSystem == nil {
				t.Fatal("expected OfSystem to be set")
			}
		}},
		{role: "user", check: func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfUser == nil {
				t.Fatal("expected OfUser to be set")
			}
		}},
		{role: "assistant", check: func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfAssistant == nil {
				t.Fatal("expected OfAssistant to be set")
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			tc.check(t, llm.Message{Role: tc.role, Content: "add two milk"})
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "llama-3.3-70b-versatile"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("key", "llama-3.3-70b-versatile", WithBaseURL("https://api.groq.com/openai/v1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != "llama-3.3-70b-versatile" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("key", "llama-3.3-70b-versatile", WithJSONMode(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "add milk"}},
		Temperature:  0.2,
		MaxTokens:    128,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if got := params.Temperature.Value; got != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 128 {
		t.Errorf("max tokens = %v, want 128", got)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected json_object response format")
	}
}

func TestBuildParams_NoMessages(t *testing.T) {
	p, err := New("key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}
