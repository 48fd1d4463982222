// Package observe provides application-wide observability primitives for
// Hostline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hostline metrics.
const meterName = "github.com/hostline-ai/hostline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks how long a caller utterance stays in
	// transcription, from first audio frame to final transcript.
	STTDuration metric.Float64Histogram

	// DialogueDuration tracks agent response generation latency.
	DialogueDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency per utterance.
	TTSDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end latency from a final transcript
	// to the first outbound audio chunk of the response.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// Transcripts counts transcript events. Use with attribute:
	//   attribute.Bool("final", ...)
	Transcripts metric.Int64Counter

	// AgentResponses counts generated agent responses.
	AgentResponses metric.Int64Counter

	// MalformedFrames counts dropped inbound audio frames.
	MalformedFrames metric.Int64Counter

	// DroppedSegments counts playback segments rejected by backpressure.
	DroppedSegments metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live calls in the registry.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("hostline.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DialogueDuration, err = m.Float64Histogram("hostline.dialogue.duration",
		metric.WithDescription("Latency of agent response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("hostline.tts.duration",
		metric.WithDescription("Latency of speech synthesis per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("hostline.pipeline.duration",
		metric.WithDescription("Latency from final transcript to first response audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Transcripts, err = m.Int64Counter("hostline.transcripts",
		metric.WithDescription("Total transcript events by finality."),
	); err != nil {
		return nil, err
	}
	if met.AgentResponses, err = m.Int64Counter("hostline.agent.responses",
		metric.WithDescription("Total generated agent responses."),
	); err != nil {
		return nil, err
	}
	if met.MalformedFrames, err = m.Int64Counter("hostline.audio.malformed_frames",
		metric.WithDescription("Total dropped malformed inbound audio frames."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSegments, err = m.Int64Counter("hostline.playback.dropped_segments",
		metric.WithDescription("Total playback segments rejected by backpressure."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("hostline.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("hostline.active_calls",
		metric.WithDescription("Number of live calls in the registry."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hostline.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscript records one transcript event.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("final", final)),
	)
}

// RecordAgentResponse records one generated agent response.
func (m *Metrics) RecordAgentResponse(ctx context.Context) {
	m.AgentResponses.Add(ctx, 1)
}

// RecordMalformedFrame records one dropped inbound audio frame.
func (m *Metrics) RecordMalformedFrame(ctx context.Context) {
	m.MalformedFrames.Add(ctx, 1)
}

// RecordDroppedSegment records one playback segment rejected by
// backpressure.
func (m *Metrics) RecordDroppedSegment(ctx context.Context) {
	m.DroppedSegments.Add(ctx, 1)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// CallStarted bumps the active-call gauge.
func (m *Metrics) CallStarted(ctx context.Context) {
	m.ActiveCalls.Add(ctx, 1)
}

// CallEnded decrements the active-call gauge.
func (m *Metrics) CallEnded(ctx context.Context) {
	m.ActiveCalls.Add(ctx, -1)
}
