// Package metrics exposes Prometheus counters and histograms for diagram
// conversions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics provides observability for conversions.
type Metrics struct {
	registry *prometheus.Registry

	// Conversions by kind and origin ("error" when the conversion failed)
	Conversions *prometheus.CounterVec

	// Conversion latency by kind
	ConversionDuration *prometheus.HistogramVec

	// Cache lookups by result
	CacheRequests *prometheus.CounterVec

	// Connected preview clients
	PreviewClients prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddmark_conversions_total",
			Help: "Total diagram conversions by kind and origin",
		}, []string{"kind", "origin"}),

		ConversionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ddmark_conversion_duration_seconds",
			Help:    "Duration of diagram conversions by kind",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"kind"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddmark_cache_requests_total",
			Help: "Rendered-diagram cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		PreviewClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddmark_preview_clients",
			Help: "Websocket clients connected to the live preview",
		}),
	}
}

// ObserveConversion records one conversion.
func (m *Metrics) ObserveConversion(kind, origin string, d time.Duration) {
	if m != nil {
		m.Conversions.WithLabelValues(kind, origin).Inc()
		m.ConversionDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// IncrementCache records a cache lookup result.
func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.CacheRequests.WithLabelValues(result).Inc()
	}
}

// SetPreviewClients records the number of connected preview clients.
func (m *Metrics) SetPreviewClients(n int) {
	if m != nil {
		m.PreviewClients.Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
