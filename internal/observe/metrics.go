// Package observe provides application-wide observability primitives for
// Cadenza: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Cadenza metrics.
const meterName = "github.com/cadenza-app/cadenza"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptionParseDuration tracks caption normalization latency.
	CaptionParseDuration metric.Float64Histogram

	// PitchTrackDuration tracks pitch contour extraction latency.
	PitchTrackDuration metric.Float64Histogram

	// TranslateBatchDuration tracks the latency of one translation batch
	// call, failed attempts included.
	TranslateBatchDuration metric.Float64Histogram

	// TranscribeDuration tracks STT latency per audio slice.
	TranscribeDuration metric.Float64Histogram

	// SynthesizeDuration tracks reference-audio synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsParsed counts segments produced by normalization. Use with
	// attribute: attribute.String("format", ...)
	SegmentsParsed metric.Int64Counter

	// TranslationRetries counts whole-batch retry attempts.
	TranslationRetries metric.Int64Counter

	// TranslationFallbacks counts segments stamped with the fallback
	// sentinel after all attempts were exhausted.
	TranslationFallbacks metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTranslationJobs tracks the number of translation jobs in flight.
	ActiveTranslationJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// buckets accommodate translation batches that run into their 90s deadline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptionParseDuration, err = m.Float64Histogram("cadenza.caption.parse.duration",
		metric.WithDescription("Latency of caption normalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PitchTrackDuration, err = m.Float64Histogram("cadenza.pitch.track.duration",
		metric.WithDescription("Latency of pitch contour extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslateBatchDuration, err = m.Float64Histogram("cadenza.translate.batch.duration",
		metric.WithDescription("Latency of one translation batch call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("cadenza.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text per audio slice."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("cadenza.synthesize.duration",
		metric.WithDescription("Latency of reference audio synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsParsed, err = m.Int64Counter("cadenza.caption.segments",
		metric.WithDescription("Total segments produced by normalization, by input format."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRetries, err = m.Int64Counter("cadenza.translate.retries",
		metric.WithDescription("Total whole-batch translation retry attempts."),
	); err != nil {
		return nil, err
	}
	if met.TranslationFallbacks, err = m.Int64Counter("cadenza.translate.fallbacks",
		metric.WithDescription("Total segments stamped with the fallback sentinel."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("cadenza.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cadenza.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTranslationJobs, err = m.Int64UpDownCounter("cadenza.translate.active_jobs",
		metric.WithDescription("Number of translation jobs currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cadenza.http.request.duration",
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

// RecordSegmentsParsed records the segment count of one normalization run.
func (m *Metrics) RecordSegmentsParsed(ctx context.Context, format string, n int) {
	m.SegmentsParsed.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("format", format)),
	)
}

// RecordTranslationRetry records one whole-batch retry attempt.
func (m *Metrics) RecordTranslationRetry(ctx context.Context) {
	m.TranslationRetries.Add(ctx, 1)
}

// RecordTranslationFallbacks records n segments stamped with the sentinel.
func (m *Metrics) RecordTranslationFallbacks(ctx context.Context, n int) {
	m.TranslationFallbacks.Add(ctx, int64(n))
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
