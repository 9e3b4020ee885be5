// Package observe provides application-wide observability primitives for
// HagopAI: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all HagopAI metrics.
const meterName = "github.com/hagop-ai/hagopai"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks speech recognition latency per utterance.
	RecognitionDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Turns counts completed conversation turns (user utterance + assistant reply).
	Turns metric.Int64Counter

	// ProgressUpdates counts learner progress mutations. Use with attribute:
	//   attribute.String("kind", ...) — lesson, chat, cultural, customization, feature
	ProgressUpdates metric.Int64Counter

	// AchievementUnlocks counts achievement unlocks. Use with attribute:
	//   attribute.String("achievement", ...)
	AchievementUnlocks metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceSessions tracks the number of live voice conversations.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
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
	if met.RecognitionDuration, err = m.Float64Histogram("hagopai.recognition.duration",
		metric.WithDescription("Latency of speech recognition per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("hagopai.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("hagopai.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("hagopai.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("hagopai.conversation.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.ProgressUpdates, err = m.Int64Counter("hagopai.progress.updates",
		metric.WithDescription("Total learner progress mutations by kind."),
	); err != nil {
		return nil, err
	}
	if met.AchievementUnlocks, err = m.Int64Counter("hagopai.achievements.unlocked",
		metric.WithDescription("Total achievement unlocks by achievement ID."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("hagopai.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("hagopai.active_voice_sessions",
		metric.WithDescription("Number of live voice conversations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hagopai.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRecognitionDuration records speech recognition latency for one
// utterance.
func (m *Metrics) RecordRecognitionDuration(ctx context.Context, d time.Duration) {
	m.RecognitionDuration.Record(ctx, d.Seconds())
}

// RecordLLMDuration records the latency of one LLM completion request.
func (m *Metrics) RecordLLMDuration(ctx context.Context, d time.Duration) {
	m.LLMDuration.Record(ctx, d.Seconds())
}

// RecordTTSDuration records the latency of one synthesis request.
func (m *Metrics) RecordTTSDuration(ctx context.Context, d time.Duration) {
	m.TTSDuration.Record(ctx, d.Seconds())
}

// RecordTurn records a completed conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context) {
	m.Turns.Add(ctx, 1)
}

// RecordProgressUpdate records a learner progress mutation of the given kind.
func (m *Metrics) RecordProgressUpdate(ctx context.Context, kind string) {
	m.ProgressUpdates.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordAchievementUnlock records an achievement unlock.
func (m *Metrics) RecordAchievementUnlock(ctx context.Context, achievementID string) {
	m.AchievementUnlocks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("achievement", achievementID)),
	)
}

// RecordSessionStart increments the live voice session gauge.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	m.ActiveVoiceSessions.Add(ctx, 1)
}

// RecordSessionEnd decrements the live voice session gauge.
func (m *Metrics) RecordSessionEnd(ctx context.Context) {
	m.ActiveVoiceSessions.Add(ctx, -1)
}
