// Package assemblyai provides an STT transcriber backed by the AssemblyAI
// REST API.
//
// A transcription is three steps: the raw file is uploaded to /v2/upload, a
// transcript job referencing the returned URL is created, and the job is
// polled until it completes or fails.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

const (
	// DefaultBaseURL is the public AssemblyAI API.
	DefaultBaseURL = "https://api.assemblyai.com"

	defaultPollInterval = time.Second
	defaultTimeout      = 30 * time.Second
)

var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPollInterval sets the delay between transcript status checks.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// WithSpeechModel selects an AssemblyAI speech model such as "best" or
// "nano". Empty uses the account default.
func WithSpeechModel(model string) Option {
	return func(p *Provider) { p.speechModel = model }
}

// WithTimeout sets the per-request HTTP timeout. Polling as a whole is bounded
// only by the context passed to Transcribe.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// Provider implements stt.Transcriber using AssemblyAI.
type Provider struct {
	apiKey       string
	baseURL      string
	speechModel  string
	pollInterval time.Duration
	client       *http.Client
}

// New creates a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		pollInterval: defaultPollInterval,
		client:       &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads audio, creates a transcript job and waits for it.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	if len(audio.Data) == 0 {
		return "", stt.ErrEmptyAudio
	}

	var up struct {
		UploadURL string `json:"upload_url"`
	}
	if err := p.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(audio.Data), &up); err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	if up.UploadURL == "" {
		return "", errors.New("assemblyai: upload: response has no upload_url")
	}

	job := map[string]any{"audio_url": up.UploadURL}
	if language != "" {
		job["language_code"] = language
	}
	if p.speechModel != "" {
		job["speech_model"] = p.speechModel
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("assemblyai: marshal job: %w", err)
	}

	var tr transcript
	if err := p.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &tr); err != nil {
		return "", fmt.Errorf("assemblyai: create transcript: %w", err)
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		switch tr.Status {
		case "completed":
			return strings.TrimSpace(tr.Text), nil
		case "error":
			return "", fmt.Errorf("assemblyai: transcript %s failed: %s", tr.ID, tr.Error)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("assemblyai: wait for transcript %s: %w", tr.ID, ctx.Err())
		case <-ticker.C:
		}

		id := tr.ID
		if err := p.do(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &tr); err != nil {
			return "", fmt.Errorf("assemblyai: poll transcript %s: %w", id, err)
		}
	}
}

func (p *Provider) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
