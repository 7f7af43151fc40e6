package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voicecart/pkg/provider/llm"
)

const defaultTemperature = 0.2

// unparsableMessage is the error marker stored when the reply holds no JSON
// object. The marker makes Validate reject the result.
const unparsableMessage = "Could not parse JSON"

// promptTemplate is the single fixed extraction prompt. %q receives the
// transcribed command.
const promptTemplate = `You are an AI working as a store assistant.
Parse the following user command into a JSON object with these exact fields.
If the command is irrelevant and contains no shopping information, put an error message in every field of the JSON object.

- product: name of the item (string)
- quantity: number (default = 1 if not mentioned)
- category: guess item category (e.g., dairy, fruit, drinks, snacks, grains)
- action: one of ["add", "remove", "delete"]
- status: always "ai_generated"

User command: %q

Return only valid JSON, no explanation.`

// ExtractorOption is a functional option for configuring an [Extractor].
type ExtractorOption func(*Extractor)

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(temp float64) ExtractorOption {
	return func(e *Extractor) { e.temperature = temp }
}

// WithMaxTokens caps the reply length. Zero keeps the provider default.
func WithMaxTokens(n int) ExtractorOption {
	return func(e *Extractor) { e.maxTokens = n }
}

// Extractor asks an [llm.Provider] to turn a transcribed command into an
// intent object. It is safe for concurrent use.
type Extractor struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// NewExtractor returns an Extractor backed by provider.
func NewExtractor(provider llm.Provider, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the object the model produced for text. The result is
// untrusted and must go through Validate or Parse.
//
// A reply without a parsable JSON object is not an error: Extract returns
// {"error": "Could not parse JSON", "raw": <reply>} so the caller rejects it
// as an invalid intent. Failures talking to the model are returned as errors.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]any, error) {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: BuildPrompt(text)}},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("intent: extract: %w", err)
	}
	if resp == nil {
		return nil, errors.New("intent: extract: empty completion response")
	}

	content := strings.TrimSpace(resp.Content)
	obj, err := parseObject(content)
	if err != nil {
		return map[string]any{errorKey: unparsableMessage, "raw": content}, nil
	}
	return obj, nil
}

// BuildPrompt renders the extraction prompt for a transcribed command.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// parseObject decodes the span between the first '{' and the last '}'.
// Numbers stay json.Number so quantities keep their exact spelling.
func parseObject(content string) (map[string]any, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in reply")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content[start : end+1])))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("reply object is null")
	}
	return obj, nil
}
