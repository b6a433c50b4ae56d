package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AlertingMetrics contains Prometheus metrics for the alert evaluation engine.
type AlertingMetrics struct {
	PassesTotal        *prometheus.CounterVec
	PassDuration       prometheus.Histogram
	SkippedTicks       prometheus.Counter
	SensorsEvaluated   *prometheus.CounterVec
	AlertTransitions   *prometheus.CounterVec
	OpenAlerts         prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	EffectDuration     *prometheus.HistogramVec
}

// NewAlertingMetrics creates and registers alerting engine metrics.
func NewAlertingMetrics(namespace string) *AlertingMetrics {
	m := &AlertingMetrics{
		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "passes_total",
				Help:      "Total number of evaluation passes",
			},
			[]string{"status"}, // status: success, error
		),
		PassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "pass_duration_seconds",
				Help:      "Duration of a full evaluation pass",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		SkippedTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "skipped_ticks_total",
				Help:      "Ticks skipped because the previous pass was still running",
			},
		),
		SensorsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "sensors_evaluated_total",
				Help:      "Sensors processed per pass by outcome",
			},
			[]string{"outcome"}, // outcome: evaluated, skipped, failed
		),
		AlertTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "alert_transitions_total",
				Help:      "Alert lifecycle transitions applied",
			},
			[]string{"kind"}, // kind: created, incremented, escalated, resolved
		),
		OpenAlerts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "open_alerts",
				Help:      "Non-resolved alerts stored after the last pass",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "deliveries_total",
				Help:      "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"}, // status: sent, failed
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Alert events published by status",
			},
			[]string{"status"},
		),
		EffectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "effect_duration_seconds",
				Help:      "Duration of asynchronous side effects",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"effect"}, // effect: publish, notify
		),
	}

	MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.SkippedTicks,
		m.SensorsEvaluated,
		m.AlertTransitions,
		m.OpenAlerts,
		m.NotificationsTotal,
		m.EventsPublished,
		m.EffectDuration,
	)

	return m
}
