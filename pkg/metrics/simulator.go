package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the reading simulator.
type SimulatorMetrics struct {
	ReadingsPublished *prometheus.CounterVec
	PublishFailures   prometheus.Counter
	PublishDuration   prometheus.Histogram
	SimulatedSensors  prometheus.Gauge
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "readings_published_total",
				Help:      "Readings published to the queue",
			},
			[]string{"warehouse"},
		),
		PublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_failures_total",
				Help:      "Readings that could not be encoded or published",
			},
		),
		PublishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_duration_seconds",
				Help:      "Duration of a publish round across all sensors",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SimulatedSensors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "sensors",
				Help:      "Number of simulated sensors",
			},
		),
	}

	MustRegister(
		m.ReadingsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.SimulatedSensors,
	)

	return m
}
