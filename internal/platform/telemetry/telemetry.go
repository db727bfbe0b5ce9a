// Package telemetry provides the OpenTelemetry tracer provider and a span
// helper. cmd/sentryd opens one span around its whole run; detections,
// fusion steps and cloud jobs are not spanned individually. No exporter is
// wired by default — callers that want traces shipped somewhere pass a
// concrete span processor to Provider; without one spans are created but
// never exported, which keeps them cheap and safe to leave on in production.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dragonx/sentinel"

// Provider wraps an SDK TracerProvider configured with the given span
// processors (typically a batch processor wrapping an OTLP or stdout
// exporter). Passing no processors yields a provider that still produces
// valid spans but never exports them.
func Provider(processors ...trace.SpanProcessor) *trace.TracerProvider {
	opts := make([]trace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, trace.WithSpanProcessor(p))
	}
	return trace.NewTracerProvider(opts...)
}

// Tracer returns the package-wide tracer, using the given provider (or the
// global provider if tp is nil).
func Tracer(tp oteltrace.TracerProvider) oteltrace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// StartSpan is a small convenience wrapper around Tracer(tp).Start; its one
// call site is cmd/sentryd's run span.
func StartSpan(ctx context.Context, tp oteltrace.TracerProvider, name string, attrs ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return Tracer(tp).Start(ctx, name, attrs...)
}
