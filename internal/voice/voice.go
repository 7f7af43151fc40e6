// Package voice turns an uploaded voice recording into a validated shopping
// intent: upload checks, transcription, intent extraction and validation.
//
// The pipeline never touches the wishlist. Its result is shown to the user
// for confirmation and submitted separately to the reconciler.
package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicecart/internal/intent"
	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// ErrUpstream matches every failure of the transcription or extraction
// backends.
var ErrUpstream = errors.New("voice: upstream service error")

// DefaultLanguage is the transcription language hint.
const DefaultLanguage = "en"

// AllowedExtensions lists the accepted upload containers.
var AllowedExtensions = []string{".webm", ".wav", ".mp3", ".m4a"}

// Messages shown to clients for rejected uploads.
const (
	msgNoFile        = "No file provided"
	msgUnsupported   = "Unsupported audio format. Please use .webm, .wav, .mp3, or .m4a"
	msgEmptyFile     = "Empty audio file"
	msgInvalidIntent = "Invalid AI response format"
)

// RequestError is a client-side problem with the upload or with what the
// model made of it. Message is safe to show to users.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// UpstreamError wraps a failed backend call. It matches [ErrUpstream].
type UpstreamError struct {
	// Stage is "Transcription" or "Intent extraction".
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string { return e.Stage + " failed: " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Extractor turns transcribed text into an untrusted intent object.
// [*intent.Extractor] satisfies it.
type Extractor interface {
	Extract(ctx context.Context, text string) (map[string]any, error)
}

// Result is a recognised and validated voice command.
type Result struct {
	RecognizedText string
	Intent         map[string]any
}

// Option is a functional option for [Pipeline].
type Option func(*Pipeline)

// WithLanguage sets the transcription language hint. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.language = lang }
}

// WithMetrics records provider latencies and voice request outcomes on m.
// sttName and llmName label the provider metrics.
func WithMetrics(m *observe.Metrics, sttName, llmName string) Option {
	return func(p *Pipeline) {
		p.metrics = m
		p.sttName = sttName
		p.llmName = llmName
	}
}

// Pipeline processes voice uploads. It is safe for concurrent use.
type Pipeline struct {
	stt       stt.Transcriber
	extractor Extractor
	language  string

	metrics *observe.Metrics
	sttName string
	llmName string
}

// New returns a Pipeline that transcribes with t and extracts with ext.
func New(t stt.Transcriber, ext Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		stt:       t,
		extractor: ext,
		language:  DefaultLanguage,
		sttName:   "stt",
		llmName:   "llm",
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckUpload applies the upload rules without calling any backend.
func CheckUpload(audio stt.Audio) error {
	if strings.TrimSpace(audio.Filename) == "" {
		return &RequestError{Message: msgNoFile}
	}
	ext := audio.Ext()
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return &RequestError{Message: msgUnsupported}
	}
	if len(audio.Data) == 0 {
		return &RequestError{Message: msgEmptyFile}
	}
	return nil
}

// Process checks the upload, transcribes it and extracts a validated
// intent. Errors are a *RequestError or match ErrUpstream.
func (p *Pipeline) Process(ctx context.Context, audio stt.Audio) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "voice.process",
		trace.WithAttributes(attribute.String("voice.filename", audio.Filename)),
	)
	defer span.End()

	res, err := p.process(ctx, audio)

	outcome := "ok"
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		outcome = "bad_request"
		span.SetAttributes(attribute.String("voice.rejected", reqErr.Message))
	case err != nil:
		outcome = "upstream_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if p.metrics != nil {
		p.metrics.RecordVoiceRequest(ctx, outcome)
	}
	return res, err
}

func (p *Pipeline) process(ctx context.Context, audio stt.Audio) (Result, error) {
	log := observe.Logger(ctx)
	if err := CheckUpload(audio); err != nil {
		log.Warn("voice upload rejected", "filename", audio.Filename, "reason", err.Error())
		return Result{}, err
	}

	start := time.Now()
	text, err := p.stt.Transcribe(ctx, audio, p.language)
	if p.metrics != nil {
		p.metrics.ObserveProvider(ctx, p.metrics.STTDuration, p.sttName, "stt", time.Since(start), err)
	}
	if err != nil {
		log.Error("transcription failed", "provider", p.sttName, "err", err)
		return Result{}, &UpstreamError{Stage: "Transcription", Err: err}
	}
	log.Info("voice command transcribed", "text", text, "duration", time.Since(start))

	start = time.Now()
	obj, err := p.extractor.Extract(ctx, text)
	if p.metrics != nil {
		p.metrics.ObserveProvider(ctx, p.metrics.LLMDuration, p.llmName, "llm", time.Since(start), err)
	}
	if err != nil {
		log.Error("intent extraction failed", "provider", p.llmName, "err", err)
		return Result{}, &UpstreamError{Stage: "Intent extraction", Err: err}
	}

	if !intent.Validate(obj) {
		log.Warn("extracted intent rejected", "text", text, "intent", obj)
		return Result{}, &RequestError{Message: msgInvalidIntent}
	}
	return Result{RecognizedText: text, Intent: obj}, nil
}
