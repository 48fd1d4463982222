package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer installs an in-memory tracer provider for the test.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestStartSpan_EndsAndExports(t *testing.T) {
	exp := withTestTracer(t)

	_, span := StartSpan(context.Background(), "synthesize utterance")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "synthesize utterance" {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("expected empty correlation ID, got %q", got)
	}
}

func TestCorrelationID_WithSpan(t *testing.T) {
	withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()

	if got := CorrelationID(ctx); len(got) != 32 {
		t.Errorf("expected 32-char trace ID, got %q", got)
	}
}

func TestLogger_WithSpanAddsTraceAttrs(t *testing.T) {
	withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()

	if Logger(ctx) == Logger(context.Background()) {
		t.Error("expected span-enriched logger to differ from default")
	}
}
