package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/logger"
	"warehouse.dev/monitor/pkg/metrics"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultWorkers     = 4
	DefaultCallTimeout = 5 * time.Second
)

// SensorLister lists every registered sensor with its zone loaded.
type SensorLister interface {
	List(ctx context.Context) ([]store.Sensor, error)
}

// ReadingLoader loads the latest reading of each requested sensor.
type ReadingLoader interface {
	LatestBySensor(ctx context.Context, sensorIDs []string) (map[string]store.Reading, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	FindOpenBySensor(ctx context.Context, sensorID uint) (*store.Alert, error)
	Create(ctx context.Context, alert *store.Alert) error
	Update(ctx context.Context, alert *store.Alert) error
	CountOpen(ctx context.Context) (int64, error)
}

// EngineConfig holds the configuration for the Engine.
type EngineConfig struct {
	Logger    *slog.Logger
	Sensors   SensorLister
	Readings  ReadingLoader
	Alerts    AlertStore
	Notifier  Notifier
	Publisher events.Publisher
	Metrics   *metrics.AlertingMetrics
	Now       func() time.Time

	Interval    time.Duration
	Workers     int
	CallTimeout time.Duration
}

// PassResult summarises one evaluation pass.
type PassResult struct {
	Sensors     int
	Evaluated   int
	Skipped     int
	Failed      int
	Conflicts   int
	Created     int
	Incremented int
	Escalated   int
	Resolved    int
}

func (r *PassResult) count(k OutcomeKind) {
	switch k {
	case OutcomeCreated:
		r.Created++
	case OutcomeIncremented:
		r.Incremented++
	case OutcomeEscalated:
		r.Escalated++
	case OutcomeResolved:
		r.Resolved++
	}
}

// Engine periodically evaluates every sensor and maintains at most one
// non-resolved alert per sensor.
type Engine struct {
	logger   *slog.Logger
	sensors  SensorLister
	readings ReadingLoader
	alerts   AlertStore
	metrics  *metrics.AlertingMetrics
	executor *Executor
	locks    *keyedMutex
	now      func() time.Time

	interval time.Duration
	workers  int
	running  atomic.Bool
}

var errSkipped = errors.New("sensor skipped")

// NewEngine creates an Engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Sensors == nil || cfg.Readings == nil || cfg.Alerts == nil {
		return nil, errors.New("sensor, reading and alert stores are required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	log := logger.WithComponent(cfg.Logger, "alerting")
	return &Engine{
		logger:   log,
		sensors:  cfg.Sensors,
		readings: cfg.Readings,
		alerts:   cfg.Alerts,
		metrics:  cfg.Metrics,
		executor: newExecutor(log, cfg.Notifier, cfg.Publisher, cfg.Metrics, callTimeout),
		locks:    newKeyedMutex(),
		now:      now,
		interval: interval,
		workers:  workers,
	}, nil
}

// Run evaluates immediately and then on every tick until ctx is done. A
// tick that fires while a pass is still running is skipped. Run returns
// after the last pass and its side effects have finished.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting alert evaluation", "interval", e.interval, "workers", e.workers)

	var wg sync.WaitGroup
	e.tick(ctx, &wg)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			e.executor.Wait()
			e.logger.Info("alert evaluation stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx, &wg)
		}
	}
}

func (e *Engine) tick(ctx context.Context, wg *sync.WaitGroup) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("previous evaluation pass still running, skipping tick")
		if e.metrics != nil {
			e.metrics.SkippedTicks.Inc()
		}
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer e.running.Store(false)
		e.RunPass(ctx)
	}()
}

// Wait blocks until the side effects of earlier passes have finished.
func (e *Engine) Wait() {
	e.executor.Wait()
}

// RunPass evaluates every sensor once. A failure on one sensor never
// affects the others.
func (e *Engine) RunPass(ctx context.Context) PassResult {
	start := time.Now()
	var result PassResult

	sensors, err := e.sensors.List(ctx)
	if err != nil {
		e.logger.Error("failed to list sensors", "error", err)
		e.recordPass(ctx, result, start, err)
		return result
	}
	result.Sensors = len(sensors)

	ids := make([]string, len(sensors))
	for i := range sensors {
		ids[i] = sensors[i].SensorID
	}
	latest, err := e.readings.LatestBySensor(ctx, ids)
	if err != nil {
		e.logger.Error("failed to load latest readings", "error", err)
		e.recordPass(ctx, result, start, err)
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.workers)
	for i := range sensors {
		sensor := sensors[i]
		reading, ok := latest[sensor.SensorID]
		g.Go(func() error {
			kind, err := e.evaluateSafely(ctx, sensor, reading, ok)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errSkipped):
				result.Skipped++
			case errors.Is(err, store.ErrDuplicateOpenAlert), errors.Is(err, store.ErrAlertResolved):
				result.Conflicts++
			case err != nil:
				result.Failed++
			default:
				result.Evaluated++
				result.count(kind)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("evaluation pass complete",
		"sensors", result.Sensors,
		"evaluated", result.Evaluated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"created", result.Created,
		"escalated", result.Escalated,
		"resolved", result.Resolved,
		"duration", time.Since(start),
	)
	e.recordPass(ctx, result, start, nil)
	return result
}

func (e *Engine) recordPass(ctx context.Context, r PassResult, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.PassesTotal.WithLabelValues(status).Inc()
	e.metrics.PassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return
	}
	e.metrics.SensorsEvaluated.WithLabelValues("evaluated").Add(float64(r.Evaluated))
	e.metrics.SensorsEvaluated.WithLabelValues("skipped").Add(float64(r.Skipped))
	e.metrics.SensorsEvaluated.WithLabelValues("failed").Add(float64(r.Failed + r.Conflicts))
	e.metrics.AlertTransitions.WithLabelValues(OutcomeCreated.String()).Add(float64(r.Created))
	e.metrics.AlertTransitions.WithLabelValues(OutcomeIncremented.String()).Add(float64(r.Incremented))
	e.metrics.AlertTransitions.WithLabelValues(OutcomeEscalated.String()).Add(float64(r.Escalated))
	e.metrics.AlertTransitions.WithLabelValues(OutcomeResolved.String()).Add(float64(r.Resolved))

	open, err := e.alerts.CountOpen(ctx)
	if err != nil {
		e.logger.Warn("failed to count open alerts", "error", err)
		return
	}
	e.metrics.OpenAlerts.Set(float64(open))
}

func (e *Engine) evaluateSafely(ctx context.Context, sensor store.Sensor, reading store.Reading, hasReading bool) (kind OutcomeKind, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while evaluating sensor", "sensor", sensor.SensorID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.Evaluate(ctx, sensor, reading, hasReading)
}

// Evaluate applies one reading to a sensor's alert. It returns errSkipped
// wrapped with the reason when the sensor cannot be evaluated.
func (e *Engine) Evaluate(ctx context.Context, sensor store.Sensor, reading store.Reading, hasReading bool) (OutcomeKind, error) {
	log := logger.WithContext(e.logger, slog.String("sensor", sensor.SensorID))

	if sensor.ZoneID == nil {
		log.Warn("sensor has no zone, skipping")
		return OutcomeNone, fmt.Errorf("%w: no zone", errSkipped)
	}
	if !hasReading {
		log.Debug("no reading yet, skipping")
		return OutcomeNone, fmt.Errorf("%w: no reading", errSkipped)
	}
	metric := sensor.Metric()
	value, ok := reading.Value(metric)
	if !ok {
		log.Warn("latest reading has no value for metric, skipping", "metric", metric)
		return OutcomeNone, fmt.Errorf("%w: missing %s", errSkipped, metric)
	}
	threshold, ok := ResolveThreshold(&sensor, metric)
	if !ok {
		log.Warn("sensor has no thresholds configured, skipping", "metric", metric)
		return OutcomeNone, fmt.Errorf("%w: no thresholds", errSkipped)
	}

	unlock := e.locks.Lock(sensor.ID)
	defer unlock()

	current, err := e.alerts.FindOpenBySensor(ctx, sensor.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to load open alert", "error", err)
		return OutcomeNone, err
	}

	obs := Observation{
		SensorID: sensor.ID,
		ZoneID:   *sensor.ZoneID,
		Value:    value,
		Breached: threshold.Breached(value),
	}
	out := Transition(current, obs, e.now())

	switch out.Kind {
	case OutcomeNone:
		return out.Kind, nil
	case OutcomeCreated:
		err = e.alerts.Create(ctx, out.Alert)
	default:
		err = e.alerts.Update(ctx, out.Alert)
	}
	if errors.Is(err, store.ErrDuplicateOpenAlert) {
		log.Warn("concurrent alert creation detected, retrying next pass")
		return OutcomeNone, err
	}
	if errors.Is(err, store.ErrAlertResolved) {
		log.Warn("alert was resolved concurrently, retrying next pass", "alert_id", out.Alert.ID)
		return OutcomeNone, err
	}
	if err != nil {
		log.Error("failed to persist alert", "transition", out.Kind.String(), "error", err)
		return OutcomeNone, err
	}

	out.Alert.Sensor = &sensor
	out.Alert.Zone = sensor.Zone
	log.Info("alert transition",
		"alert_id", out.Alert.ID,
		"transition", out.Kind.String(),
		"value", value,
		"breaches", out.Alert.ConsecutiveBreaches,
		"level", out.Alert.EscalationLevel,
	)
	e.executor.Submit(job{outcome: out, sensor: sensor, threshold: threshold, value: value})
	return out.Kind, nil
}
