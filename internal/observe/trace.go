package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicecart"

// UserKey is the span attribute carrying the username a request acts for.
const UserKey = attribute.Key("voicecart.user")

type userCtxKey struct{}

// WithUser tags ctx with the shopper's username. Spans started from ctx get
// a [UserKey] attribute and [Logger] adds a "user" field.
func WithUser(ctx context.Context, username string) context.Context {
	if username == "" {
		return ctx
	}
	return context.WithValue(ctx, userCtxKey{}, username)
}

// User returns the username set by [WithUser], or "".
func User(ctx context.Context) string {
	u, _ := ctx.Value(userCtxKey{}).(string)
	return u
}

// StartSpan starts a span named name on the service tracer. The caller must
// call span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if u := User(ctx); u != "" {
		opts = append(opts, trace.WithAttributes(UserKey.String(u)))
	}
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx. It is echoed to
// clients as X-Correlation-ID. Empty when ctx carries no valid span.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with trace_id, span_id and user
// attributes taken from ctx where present.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if u := User(ctx); u != "" {
		attrs = append(attrs, slog.String("user", u))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
