// Package observe provides the observability primitives shared by the
// voicecart service: OpenTelemetry metrics, tracing, trace-aware logging and
// an HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance is available for wiring; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicecart metrics.
const meterName = "github.com/MrWong99/voicecart"

// Metrics holds all metric instruments for the application. The underlying
// OTel types are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks transcription latency. Attribute: provider.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks intent extraction latency. Attribute: provider.
	LLMDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding latency. Attribute: provider.
	EmbeddingDuration metric.Float64Histogram

	// ReconcileDuration tracks the time spent applying one intent.
	// Attributes: action, result.
	ReconcileDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls.
	// Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Reconciliations counts wishlist updates. Attributes: action, result
	// where result is "committed", "error" or the rejection kind.
	Reconciliations metric.Int64Counter

	// VoiceRequests counts voice uploads by outcome.
	VoiceRequests metric.Int64Counter

	// --- Gauges ---

	// InFlightRequests is the number of HTTP requests being served.
	InFlightRequests metric.Int64UpDownCounter
}

// latencyBuckets are histogram bucket boundaries in seconds. Transcription
// of a full upload can take several seconds, so the range is wide.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "voicecart.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "voicecart.llm.duration", "Latency of LLM intent extraction."},
		{&met.EmbeddingDuration, "voicecart.embedding.duration", "Latency of embedding requests."},
		{&met.ReconcileDuration, "voicecart.wishlist.reconcile.duration", "Latency of applying one intent to a wishlist."},
		{&met.HTTPRequestDuration, "voicecart.http.request.duration", "HTTP request latency by method, route and status."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.ProviderRequests, err = m.Int64Counter("voicecart.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicecart.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Reconciliations, err = m.Int64Counter("voicecart.wishlist.reconciliations",
		metric.WithDescription("Total wishlist updates by action and result."),
	); err != nil {
		return nil, err
	}
	if met.VoiceRequests, err = m.Int64Counter("voicecart.voice.requests",
		metric.WithDescription("Total voice command uploads by outcome."),
	); err != nil {
		return nil, err
	}

	if met.InFlightRequests, err = m.Int64UpDownCounter("voicecart.http.requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being served."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the Prometheus-backed provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordReconciliation counts one wishlist update and records its latency.
func (m *Metrics) RecordReconciliation(ctx context.Context, action, result string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	)
	m.Reconciliations.Add(ctx, 1, attrs)
	m.ReconcileDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordVoiceRequest counts one voice upload by outcome, e.g. "ok",
// "bad_request" or "upstream_error".
func (m *Metrics) RecordVoiceRequest(ctx context.Context, outcome string) {
	m.VoiceRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveProvider records one provider call: the latency on h and the
// request counter, plus the error counter when err is non-nil.
func (m *Metrics) ObserveProvider(ctx context.Context, h metric.Float64Histogram, provider, kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.RecordProviderRequest(ctx, provider, kind, status)
}
