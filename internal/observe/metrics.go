// Package observe provides application-wide observability primitives for
// Astra: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Astra metrics.
const meterName = "github.com/MrWong99/astra"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long session establishment takes.
	ConnectDuration metric.Float64Histogram

	// SendDuration tracks the wire latency of one outbound audio chunk.
	SendDuration metric.Float64Histogram

	// --- Counters ---

	// SessionConnects counts connection attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	SessionConnects metric.Int64Counter

	// AudioChunksSent counts outbound capture chunks.
	AudioChunksSent metric.Int64Counter

	// BuffersScheduled counts playback fragments handed to the output device.
	BuffersScheduled metric.Int64Counter

	// Interruptions counts barge-in events that silenced playback.
	Interruptions metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// SessionErrors counts session failures. Use with attribute:
	//   attribute.String("kind", ...)
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SendQueueDepth tracks the number of chunks waiting in the send queue.
	SendQueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for realtime audio latencies.
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
	if met.ConnectDuration, err = m.Float64Histogram("astra.session.connect.duration",
		metric.WithDescription("Latency of live session establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SendDuration, err = m.Float64Histogram("astra.audio.send.duration",
		metric.WithDescription("Wire latency of one outbound audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SessionConnects, err = m.Int64Counter("astra.session.connects",
		metric.WithDescription("Total connection attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksSent, err = m.Int64Counter("astra.audio.chunks_sent",
		metric.WithDescription("Total capture chunks delivered to the live session."),
	); err != nil {
		return nil, err
	}
	if met.BuffersScheduled, err = m.Int64Counter("astra.playback.buffers_scheduled",
		metric.WithDescription("Total playback fragments handed to the output device."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("astra.playback.interruptions",
		metric.WithDescription("Total barge-in events that silenced playback."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("astra.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("astra.session.errors",
		metric.WithDescription("Total session failures by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("astra.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.SendQueueDepth, err = m.Int64UpDownCounter("astra.send_queue.depth",
		metric.WithDescription("Number of chunks waiting in the send queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("astra.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordConnect is a convenience method that records a connection attempt
// with the standard attribute set.
func (m *Metrics) RecordConnect(ctx context.Context, provider, status string) {
	m.SessionConnects.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordSessionError is a convenience method that records a session failure
// counter increment.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
