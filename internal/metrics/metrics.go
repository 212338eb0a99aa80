// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	readings         *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	classifyDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		readings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minewatch_readings_total",
			Help: "Stored sensor readings by ingest source and classified status",
		}, []string{"source", "status"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minewatch_alerts_total",
			Help: "Alert email attempts by result",
		}, []string{"result"}),
		classifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "minewatch_classify_seconds",
			Help:    "Time spent classifying one reading",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs .. ~2.6s
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveReading(source, status string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ObserveAlert(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "sent"
	}
	m.alerts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClassify(d time.Duration) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(d.Seconds())
}
