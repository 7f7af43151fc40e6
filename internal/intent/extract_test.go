package intent_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voicecart/internal/intent"
	"github.com/MrWong99/voicecart/pkg/provider/llm"
	"github.com/MrWong99/voicecart/pkg/provider/llm/mock"
)

func reply(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestExtract_SendsPrompt(t *testing.T) {
	t.Parallel()

	p := reply(`{"product":"Apple","quantity":2,"category":"fruit","action":"add","status":"ai_generated"}`)
	e := intent.NewExtractor(p)

	if _, err := e.Extract(context.Background(), "add two apples"); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 Complete call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{`"add two apples"`, "ai_generated", "Return only valid JSON"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestExtract_Options(t *testing.T) {
	t.Parallel()

	p := reply(`{}`)
	e := intent.NewExtractor(p, intent.WithTemperature(0), intent.WithMaxTokens(128))
	if _, err := e.Extract(context.Background(), "x"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	req := p.Calls()[0].Req
	if req.Temperature != 0 || req.MaxTokens != 128 {
		t.Errorf("request = %+v", req)
	}
}

func TestExtract_Replies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		wantValid bool
		check     func(t *testing.T, obj map[string]any)
	}{
		{
			name:      "plain object",
			content:   `{"product":"Milk","quantity":1,"category":"dairy","action":"add","status":"ai_generated"}`,
			wantValid: true,
			check: func(t *testing.T, obj map[string]any) {
				if obj["quantity"] != json.Number("1") {
					t.Errorf("quantity = %#v, want json.Number", obj["quantity"])
				}
			},
		},
		{
			name:      "fenced with prose",
			content:   "Sure!\n```json\n{\"product\":\"Cola\",\"quantity\":\"3\",\"category\":\"drinks\",\"action\":\"remove\",\"status\":\"ai_generated\"}\n```\nAnything else?",
			wantValid: true,
			check: func(t *testing.T, obj map[string]any) {
				if obj["product"] != "Cola" {
					t.Errorf("product = %v", obj["product"])
				}
			},
		},
		{
			name:    "no json",
			content: "I cannot help with that.",
			check: func(t *testing.T, obj map[string]any) {
				if obj["error"] != "Could not parse JSON" || obj["raw"] != "I cannot help with that." {
					t.Errorf("unexpected sentinel: %v", obj)
				}
			},
		},
		{
			name:    "broken json",
			content: `{"product": "Milk", }`,
			check: func(t *testing.T, obj map[string]any) {
				if _, ok := obj["error"]; !ok {
					t.Errorf("expected error marker, got %v", obj)
				}
			},
		},
		{
			name:    "model error fields",
			content: `{"product":"error","quantity":"error","category":"error","action":"error","status":"error"}`,
		},
		{
			name:    "braces reversed",
			content: "} nothing {",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			obj, err := intent.NewExtractor(reply(tt.content)).Extract(context.Background(), "cmd")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got := intent.Validate(obj); got != tt.wantValid {
				t.Errorf("Validate(extracted) = %v, want %v (obj=%v)", got, tt.wantValid, obj)
			}
			if tt.check != nil {
				tt.check(t, obj)
			}
		})
	}
}

func TestExtract_ProviderError(t *testing.T) {
	t.Parallel()

	upstream := errors.New("rate limited")
	e := intent.NewExtractor(&mock.Provider{CompleteErr: upstream})
	_, err := e.Extract(context.Background(), "add milk")
	if !errors.Is(err, upstream) {
		t.Fatalf("err = %v, want wrapped upstream error", err)
	}
}

func TestExtract_NilResponse(t *testing.T) {
	t.Parallel()

	if _, err := intent.NewExtractor(&mock.Provider{}).Extract(context.Background(), "x"); err == nil {
		t.Fatal("expected error for nil response")
	}
}
