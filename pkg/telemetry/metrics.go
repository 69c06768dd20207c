package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	resolutionMetrics *ResolutionMetrics
)

// ResolutionMetrics records connection-policy resolution outcomes.
type ResolutionMetrics struct {
	resolutionsTotal    metric.Int64Counter
	providerErrorsTotal metric.Int64Counter
	providerDuration    metric.Float64Histogram
	optionCount         metric.Int64Histogram

	logger *slog.Logger
}

// GetResolutionMetrics returns the singleton resolution metrics collector.
func GetResolutionMetrics(logger *slog.Logger) (*ResolutionMetrics, error) {
	metricsOnce.Do(func() {
		resolutionMetrics, metricsInitErr = NewResolutionMetrics(logger)
	})
	return resolutionMetrics, metricsInitErr
}

// NewResolutionMetrics creates a collector against the global meter
// provider. Most callers want GetResolutionMetrics; tests install their
// own provider and construct directly.
func NewResolutionMetrics(logger *slog.Logger) (*ResolutionMetrics, error) {
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.GetMeterProvider().Meter("tlsgate.resolution")

	collector := &ResolutionMetrics{logger: logger}

	var err error

	collector.resolutionsTotal, err = meter.Int64Counter(
		"tlsgate_resolutions_total",
		metric.WithDescription("Total number of connection-policy resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	collector.providerErrorsTotal, err = meter.Int64Counter(
		"tlsgate_provider_errors_total",
		metric.WithDescription("Total number of dynamic provider failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	collector.providerDuration, err = meter.Float64Histogram(
		"tlsgate_provider_duration_seconds",
		metric.WithDescription("Dynamic provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	collector.optionCount, err = meter.Int64Histogram(
		"tlsgate_resolved_options",
		metric.WithDescription("Number of entries in resolved option lists"),
		metric.WithUnit("{option}"),
	)
	if err != nil {
		return nil, err
	}

	return collector, nil
}

// RecordResolution records a completed resolution.
func (m *ResolutionMetrics) RecordResolution(ctx context.Context, mode string, optionCount int) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
	}

	m.resolutionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.optionCount.Record(ctx, int64(optionCount), metric.WithAttributes(attrs...))

	m.logger.Debug("resolution recorded", "mode", mode, "options", optionCount)
}

// RecordProviderCall records a dynamic provider invocation.
func (m *ResolutionMetrics) RecordProviderCall(ctx context.Context, target string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("target", target),
	}

	m.providerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		m.providerErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		m.logger.Warn("provider call failed",
			"target", target,
			"duration", duration,
			"error", err)
		return
	}

	m.logger.Debug("provider call completed",
		"target", target,
		"duration", duration)
}
