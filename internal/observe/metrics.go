// Package observe holds the OpenTelemetry instruments for the interview
// pipeline and the Prometheus bridge that exposes them on /metrics.
//
// Tests should build a [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] instead of relying on the global provider.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/user/interview-coach"

// Metrics holds all instruments. The OTel types are safe for concurrent use.
type Metrics struct {
	// SegmentsEnqueued counts segments accepted by the transcription queue.
	SegmentsEnqueued metric.Int64Counter

	// SegmentsDropped counts segments rejected because the queue was full.
	SegmentsDropped metric.Int64Counter

	// TranscriptionErrors counts failed engine calls.
	TranscriptionErrors metric.Int64Counter

	// STTDuration tracks engine latency per segment, in seconds.
	STTDuration metric.Float64Histogram

	// Warnings counts live warnings. Use with attribute.String("kind", ...).
	Warnings metric.Int64Counter

	// AnswersFinalized counts persisted answers.
	AnswersFinalized metric.Int64Counter

	// ActiveSessions tracks sessions that have started and not yet completed.
	ActiveSessions metric.Int64UpDownCounter

	// QuestionFallbacks counts questions served from the deterministic fallback.
	QuestionFallbacks metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SegmentsEnqueued, err = m.Int64Counter("interview.segments.enqueued",
		metric.WithDescription("Segments accepted by the transcription queue."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("interview.segments.dropped",
		metric.WithDescription("Segments dropped because the transcription queue was full."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("interview.stt.errors",
		metric.WithDescription("Failed transcription engine calls."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("interview.stt.duration",
		metric.WithDescription("Latency of segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Warnings, err = m.Int64Counter("interview.warnings",
		metric.WithDescription("Live warnings emitted by kind."),
	); err != nil {
		return nil, err
	}
	if met.AnswersFinalized, err = m.Int64Counter("interview.answers.finalized",
		metric.WithDescription("Answers finalized and scored."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("interview.active_sessions",
		metric.WithDescription("Sessions bound to a live connection."),
	); err != nil {
		return nil, err
	}
	if met.QuestionFallbacks, err = m.Int64Counter("interview.question.fallbacks",
		metric.WithDescription("Questions served from the deterministic fallback."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider. It panics if instrument creation fails.
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

// RecordWarning increments the warning counter for kind.
func (m *Metrics) RecordWarning(ctx context.Context, kind string) {
	m.Warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// InitProvider registers a meter provider backed by the Prometheus exporter as
// the global provider. The exporter registers with the default Prometheus
// registry, so promhttp.Handler serves the instruments.
func InitProvider() (shutdown func(context.Context) error, err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(mp.ForceFlush(ctx), mp.Shutdown(ctx))
	}, nil
}
