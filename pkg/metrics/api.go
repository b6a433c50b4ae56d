package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics contains Prometheus metrics for the HTTP API service.
type APIMetrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ReadingsIngested     *prometheus.CounterVec
	Acknowledgements     *prometheus.CounterVec
	WebsocketClients     prometheus.Gauge
	BroadcastsDropped    prometheus.Counter
	RenderDuration       *prometheus.HistogramVec
}

// NewAPIMetrics creates and registers API service metrics.
func NewAPIMetrics(namespace string) *APIMetrics {
	m := &APIMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Readings appended by source and status",
			},
			[]string{"source", "status"}, // source: http, queue
		),
		Acknowledgements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "acknowledgements_total",
				Help:      "Acknowledgement attempts by result",
			},
			[]string{"result"}, // result: ok, not_triggered, not_found, error
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected websocket subscribers",
			},
		),
		BroadcastsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "dropped_subscribers_total",
				Help:      "Subscribers dropped because their send buffer was full",
			},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "templ",
				Name:      "render_duration_seconds",
				Help:      "Duration of page rendering",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"page"},
		),
	}

	MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ReadingsIngested,
		m.Acknowledgements,
		m.WebsocketClients,
		m.BroadcastsDropped,
		m.RenderDuration,
	)

	return m
}
