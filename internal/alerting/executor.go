package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/notify"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

// Notifier delivers a notification to the users responsible for it.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) (notify.Result, error)
}

// job carries everything an outcome's effects need, captured at persist time.
type job struct {
	outcome   Outcome
	sensor    store.Sensor
	threshold Threshold
	value     float64
}

// Executor runs the side effects of persisted transitions in the
// background. Failures are logged and never reach the evaluation pass.
type Executor struct {
	logger    *slog.Logger
	notifier  Notifier
	publisher events.Publisher
	metrics   *metrics.AlertingMetrics
	wg        sync.WaitGroup
	timeout   time.Duration
}

func newExecutor(logger *slog.Logger, n Notifier, p events.Publisher, m *metrics.AlertingMetrics, timeout time.Duration) *Executor {
	return &Executor{
		logger:    logger,
		notifier:  n,
		publisher: p,
		metrics:   m,
		timeout:   timeout,
	}
}

// Submit schedules the effects of j.
func (x *Executor) Submit(j job) {
	if len(j.outcome.Effects) == 0 {
		return
	}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		for _, eff := range j.outcome.Effects {
			x.run(j, eff)
		}
	}()
}

// Wait blocks until every submitted effect has finished.
func (x *Executor) Wait() {
	x.wg.Wait()
}

func (x *Executor) run(j job, eff Effect) {
	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
	defer cancel()

	start := time.Now()
	alert := j.outcome.Alert
	logger := x.logger.With("alert_id", alert.ID, "sensor", j.sensor.SensorID)

	switch eff.Kind {
	case EffectPublish:
		if x.publisher == nil {
			return
		}
		status := "success"
		if err := x.publisher.PublishAlert(ctx, events.NewAlertEvent(alert)); err != nil {
			status = "error"
			logger.Error("failed to publish alert update", "error", err)
		}
		if x.metrics != nil {
			x.metrics.EventsPublished.WithLabelValues(status).Inc()
			x.metrics.EffectDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
		}

	case EffectNotify:
		if x.notifier == nil {
			return
		}
		n := notify.Notification{
			AlertID:  alert.ID,
			ZoneID:   alert.ZoneID,
			SensorID: j.sensor.SensorID,
			Metric:   j.sensor.Metric(),
			Unit:     j.sensor.Unit(),
			Value:    j.value,
			Min:      j.threshold.Min,
			Max:      j.threshold.Max,
			Severity: alert.Severity,
			Level:    eff.Level,
		}
		if j.sensor.Zone != nil {
			n.ZoneName = j.sensor.Zone.Name
		}
		res, err := x.notifier.Dispatch(ctx, n)
		if err != nil {
			logger.Error("failed to notify", "level", eff.Level, "error", err)
		} else {
			logger.Info("notification dispatched",
				"level", eff.Level,
				"recipients", res.Recipients,
				"sent", res.Sent,
				"failed", res.Failed,
			)
		}
		if x.metrics != nil {
			x.metrics.EffectDuration.WithLabelValues("notify").Observe(time.Since(start).Seconds())
		}
	}
}
