package watcher

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the watcher.
type Metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	configReloads      *prometheus.CounterVec
	lastResolution     *prometheus.GaugeVec
	optionEntries      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance with all watcher metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tlsgate_watcher_resolutions_total",
				Help: "Total number of connection-policy resolutions by mode",
			},
			[]string{"mode"},
		),

		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tlsgate_watcher_resolution_duration_seconds",
				Help:    "Resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tlsgate_watcher_config_reloads_total",
				Help: "Total number of configuration reload attempts by status",
			},
			[]string{"status"},
		),

		lastResolution: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tlsgate_watcher_last_resolution_timestamp_seconds",
				Help: "Unix timestamp of the last resolution by mode",
			},
			[]string{"mode"},
		),

		optionEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tlsgate_watcher_resolved_options",
				Help: "Number of entries in the current resolved option list",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
		m.configReloads,
		m.lastResolution,
		m.optionEntries,
	)

	return m
}

// RecordResolution records a completed resolution.
func (m *Metrics) RecordResolution(mode string, optionCount int, duration time.Duration) {
	m.resolutionsTotal.WithLabelValues(mode).Inc()
	m.resolutionDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.lastResolution.WithLabelValues(mode).SetToCurrentTime()
	m.optionEntries.Set(float64(optionCount))
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(status string) {
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
