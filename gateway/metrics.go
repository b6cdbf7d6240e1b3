package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "clamav_gateway"

// Scan outcome label values.
const (
	outcomeBenign    = "benign"
	outcomeMalignant = "malignant"
	outcomeError     = "error"
)

// Metrics contains the gateway's Prometheus collectors and the registry they
// are exposed from.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ScansTotal      *prometheus.CounterVec
	ScanErrorsTotal *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	BytesScanned    prometheus.Counter
	ScansInFlight   prometheus.Gauge
	BackendUp       prometheus.Gauge
}

// NewMetrics creates the gateway metrics on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "scan",
				Name:      "total",
				Help:      "Total number of scans by outcome (benign, malignant, error)",
			},
			[]string{"outcome"},
		),

		ScanErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "scan",
				Name:      "errors_total",
				Help:      "Total number of failed scans by error kind",
			},
			[]string{"kind"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "scan",
				Name:      "duration_seconds",
				Help:      "Time from first body byte to clamd verdict in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
		),

		BytesScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "scan",
				Name:      "bytes_total",
				Help:      "Total number of request body bytes forwarded to clamd",
			},
		),

		ScansInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "scan",
				Name:      "in_flight",
				Help:      "Number of scans currently streaming",
			},
		),

		BackendUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "up",
				Help:      "clamd health as of the last probe (0=unhealthy, 1=healthy)",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ScansTotal,
		m.ScanErrorsTotal,
		m.ScanDuration,
		m.BytesScanned,
		m.ScansInFlight,
		m.BackendUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetBackendUp records the result of a backend health probe.
func (m *Metrics) SetBackendUp(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.BackendUp.Set(1)
	} else {
		m.BackendUp.Set(0)
	}
}

func (m *Metrics) observeRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) scanStarted() {
	if m == nil {
		return
	}
	m.ScansInFlight.Inc()
}

func (m *Metrics) scanFinished(outcome, errKind string, bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ScansInFlight.Dec()
	m.ScansTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeError {
		m.ScanErrorsTotal.WithLabelValues(errKind).Inc()
	}
	m.BytesScanned.Add(float64(bytes))
	m.ScanDuration.Observe(elapsed.Seconds())
}
