package alerting_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		st        *store.Store
		zone      *store.Zone
		sensor    *store.Sensor
		notifier  *recordingNotifier
		publisher *recordingPublisher
		engine    *alerting.Engine
		clock     time.Time
	)

	newEngine := func() *alerting.Engine {
		e, err := alerting.NewEngine(&alerting.EngineConfig{
			Logger:    quietLogger(),
			Sensors:   st.Sensors,
			Readings:  st.Readings,
			Alerts:    st.Alerts,
			Notifier:  notifier,
			Publisher: publisher,
			Workers:   3,
			Now:       func() time.Time { return clock },
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	addSensor := func(s *store.Sensor) *store.Sensor {
		Expect(st.Sensors.Create(ctx, s)).To(Succeed())
		return s
	}

	record := func(sensorID string, temperature, humidity *float64) {
		clock = clock.Add(time.Minute)
		Expect(st.Readings.Append(ctx, &store.Reading{
			SensorID:    sensorID,
			WarehouseID: "WH-A",
			Timestamp:   clock,
			Temperature: temperature,
			Humidity:    humidity,
		})).To(Succeed())
	}

	pass := func() alerting.PassResult {
		res := engine.RunPass(ctx)
		engine.Wait()
		return res
	}

	openAlert := func() *store.Alert {
		a, err := st.Alerts.FindOpenBySensor(ctx, sensor.ID)
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = newTestStore()
		clock = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
		notifier = &recordingNotifier{}
		publisher = &recordingPublisher{}

		zone = &store.Zone{Name: "Cold Room"}
		Expect(st.Zones.Create(ctx, zone)).To(Succeed())
		sensor = addSensor(&store.Sensor{
			SensorID:       "S1",
			Type:           store.MetricTemperature,
			ZoneID:         &zone.ID,
			MinTemperature: ptr(2.0),
			MaxTemperature: ptr(6.0),
		})
		engine = newEngine()
	})

	Describe("configuration", func() {
		It("rejects a nil config", func() {
			_, err := alerting.NewEngine(nil)
			Expect(err).To(MatchError("engine config cannot be nil"))
		})

		It("rejects a missing logger", func() {
			_, err := alerting.NewEngine(&alerting.EngineConfig{Sensors: st.Sensors, Readings: st.Readings, Alerts: st.Alerts})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("requires the stores", func() {
			_, err := alerting.NewEngine(&alerting.EngineConfig{Logger: quietLogger()})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("alert lifecycle", func() {
		It("creates a medium Operator alert on the first breach", func() {
			record("S1", ptr(8.0), ptr(50.0))

			res := pass()
			Expect(res.Created).To(Equal(1))

			a := openAlert()
			Expect(a.Status).To(Equal(store.AlertTriggered))
			Expect(a.Severity).To(Equal(store.SeverityMedium))
			Expect(a.EscalationLevel).To(Equal(store.RoleOperator))
			Expect(a.ConsecutiveBreaches).To(Equal(1))
			Expect(a.ZoneID).To(Equal(zone.ID))
			Expect(a.History).To(HaveLen(1))
			Expect(a.History[0].Note).To(Equal("Initial breach detected. Value: 8"))

			Expect(notifier.levels()).To(Equal([]store.Role{store.RoleOperator}))
			n := notifier.last()
			Expect(n.SensorID).To(Equal("S1"))
			Expect(n.ZoneName).To(Equal("Cold Room"))
			Expect(n.Value).To(Equal(8.0))
			Expect(*n.Min).To(Equal(2.0))
			Expect(n.Unit).To(Equal("C"))

			Expect(publisher.count()).To(Equal(1))
			e := publisher.last()
			Expect(e.Alert.Sensor.SensorID).To(Equal("S1"))
			Expect(e.Alert.Zone.Name).To(Equal("Cold Room"))
		})

		It("escalates to Manager after three breaches and Admin after six", func() {
			record("S1", ptr(8.0), nil)
			pass()
			pass()
			res := pass()
			Expect(res.Escalated).To(Equal(1))

			a := openAlert()
			Expect(a.ConsecutiveBreaches).To(Equal(3))
			Expect(a.EscalationLevel).To(Equal(store.RoleManager))
			Expect(a.History[len(a.History)-1].Status).To(Equal(store.HistoryEscalated))
			Expect(notifier.levels()).To(Equal([]store.Role{store.RoleOperator, store.RoleManager}))

			pass()
			pass()
			pass()
			a = openAlert()
			Expect(a.ConsecutiveBreaches).To(Equal(6))
			Expect(a.EscalationLevel).To(Equal(store.RoleAdmin))
			Expect(notifier.levels()).To(Equal([]store.Role{store.RoleOperator, store.RoleManager, store.RoleAdmin}))
			Expect(publisher.count()).To(Equal(6))
		})

		It("resolves without notifying when the reading returns to normal", func() {
			record("S1", ptr(8.0), nil)
			pass()
			pass()
			alertID := openAlert().ID

			record("S1", ptr(4.0), nil)
			res := pass()
			Expect(res.Resolved).To(Equal(1))

			_, err := st.Alerts.FindOpenBySensor(ctx, sensor.ID)
			Expect(err).To(MatchError(store.ErrNotFound))

			a, err := st.Alerts.Get(ctx, alertID)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Status).To(Equal(store.AlertResolved))
			Expect(a.ResolvedAt).NotTo(BeNil())
			Expect(a.ConsecutiveBreaches).To(BeZero())
			Expect(a.History[len(a.History)-1].Note).To(Equal("Sensor reading returned to normal."))

			Expect(notifier.levels()).To(HaveLen(1))
			Expect(publisher.last().Alert.Status).To(Equal(store.AlertResolved))
		})

		It("opens a fresh Operator alert after resolution", func() {
			record("S1", ptr(8.0), nil)
			for range 3 {
				pass()
			}
			first := openAlert()

			record("S1", ptr(4.0), nil)
			pass()
			record("S1", ptr(9.0), nil)
			pass()

			second := openAlert()
			Expect(second.ID).NotTo(Equal(first.ID))
			Expect(second.EscalationLevel).To(Equal(store.RoleOperator))
			Expect(second.ConsecutiveBreaches).To(Equal(1))
			Expect(second.TriggeredAt).To(BeTemporally(">", first.TriggeredAt))
		})

		It("does nothing while readings stay in range", func() {
			record("S1", ptr(4.0), nil)
			res := pass()

			Expect(res.Evaluated).To(Equal(1))
			Expect(res.Created + res.Resolved).To(BeZero())
			Expect(publisher.count()).To(BeZero())
		})

		It("keeps counting an acknowledged alert and resolves it later", func() {
			record("S1", ptr(8.0), nil)
			pass()
			a := openAlert()
			_, err := st.Alerts.Acknowledge(ctx, a.ID, 1, "Dana", clock)
			Expect(err).NotTo(HaveOccurred())

			pass()
			pass()
			a = openAlert()
			Expect(a.Status).To(Equal(store.AlertAcknowledged))
			Expect(a.EscalationLevel).To(Equal(store.RoleManager))
			Expect(a.AcknowledgedBy).To(HaveValue(Equal(uint(1))))

			record("S1", ptr(5.0), nil)
			pass()
			resolved, err := st.Alerts.Get(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved.Status).To(Equal(store.AlertResolved))
		})

		It("rejects acknowledging a resolved alert", func() {
			record("S1", ptr(8.0), nil)
			pass()
			id := openAlert().ID
			record("S1", ptr(4.0), nil)
			pass()

			_, err := st.Alerts.Acknowledge(ctx, id, 1, "Dana", clock)
			Expect(err).To(MatchError(store.ErrAlertNotTriggered))
		})
	})

	Describe("idempotence", func() {
		It("counts a repeated pass without duplicating the trigger entry", func() {
			record("S1", ptr(8.0), nil)
			pass()
			pass()

			var n int64
			Expect(st.DB.Model(&store.Alert{}).Count(&n).Error).To(Succeed())
			Expect(n).To(Equal(int64(1)))

			a := openAlert()
			Expect(a.ConsecutiveBreaches).To(Equal(2))
			triggered := 0
			for _, h := range a.History {
				if h.Status == store.HistoryTriggered {
					triggered++
				}
			}
			Expect(triggered).To(Equal(1))
		})
	})

	Describe("skipped sensors", func() {
		It("skips sensors without a zone", func() {
			addSensor(&store.Sensor{SensorID: "S2", Type: store.MetricTemperature, MaxTemperature: ptr(6.0)})
			record("S2", ptr(50.0), nil)

			res := pass()
			Expect(res.Skipped).To(Equal(2))
			Expect(publisher.count()).To(BeZero())
		})

		It("skips sensors without readings", func() {
			res := pass()
			Expect(res.Sensors).To(Equal(1))
			Expect(res.Skipped).To(Equal(1))
		})

		It("skips readings missing the sensor's metric", func() {
			record("S1", nil, ptr(99.0))
			res := pass()
			Expect(res.Skipped).To(Equal(1))
		})

		It("skips non-finite values without touching the open alert", func() {
			kind, err := engine.Evaluate(ctx, *sensor, store.Reading{SensorID: "S1", Temperature: ptr(8.0)}, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(alerting.OutcomeCreated))

			for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				kind, err = engine.Evaluate(ctx, *sensor, store.Reading{SensorID: "S1", Temperature: ptr(v)}, true)
				Expect(err).To(HaveOccurred())
				Expect(kind).To(Equal(alerting.OutcomeNone))
			}
			engine.Wait()

			a := openAlert()
			Expect(a.Status).To(Equal(store.AlertTriggered))
			Expect(a.ResolvedAt).To(BeNil())
			Expect(a.ConsecutiveBreaches).To(Equal(1))
			Expect(publisher.count()).To(Equal(1))
		})

		It("skips sensors without thresholds", func() {
			sensor.MinTemperature = nil
			sensor.MaxTemperature = nil
			Expect(st.Sensors.Update(ctx, sensor)).To(Succeed())
			record("S1", ptr(100.0), nil)

			res := pass()
			Expect(res.Skipped).To(Equal(1))
		})
	})

	Describe("one-sided thresholds", func() {
		It("never breaches on the max side when only a minimum is set", func() {
			addSensor(&store.Sensor{
				SensorID:    "H1",
				Type:        store.MetricHumidity,
				ZoneID:      &zone.ID,
				MinHumidity: ptr(30.0),
			})
			record("H1", nil, ptr(10000.0))

			res := pass()
			Expect(res.Created).To(BeZero())
		})

		It("uses nested thresholds when the flat fields are unset", func() {
			addSensor(&store.Sensor{
				SensorID: "H2",
				Type:     store.MetricHumidity,
				ZoneID:   &zone.ID,
				Thresholds: store.Thresholds{
					Humidity: store.Range{Max: ptr(70.0)},
				},
			})
			record("H2", nil, ptr(80.0))

			res := pass()
			Expect(res.Created).To(Equal(1))
			Expect(notifier.last().Unit).To(Equal("%"))
		})
	})

	Describe("failure isolation", func() {
		It("keeps evaluating other sensors when one fails", func() {
			failing := &failingAlerts{AlertStore: st.Alerts, failFor: sensor.ID}
			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:    quietLogger(),
				Sensors:   st.Sensors,
				Readings:  st.Readings,
				Alerts:    failing,
				Notifier:  notifier,
				Publisher: publisher,
			})
			Expect(err).NotTo(HaveOccurred())

			other := addSensor(&store.Sensor{SensorID: "S2", Type: store.MetricTemperature, ZoneID: &zone.ID, MaxTemperature: ptr(6.0)})
			record("S1", ptr(8.0), nil)
			record("S2", ptr(8.0), nil)

			res := e.RunPass(ctx)
			e.Wait()
			Expect(res.Failed).To(Equal(1))
			Expect(res.Created).To(Equal(1))

			_, err = st.Alerts.FindOpenBySensor(ctx, other.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("counts an alert resolved by another writer as a conflict", func() {
			record("S1", ptr(8.0), nil)
			pass()

			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:    quietLogger(),
				Sensors:   st.Sensors,
				Readings:  st.Readings,
				Alerts:    &resolvingAlerts{AlertStore: st.Alerts, store: st, at: clock},
				Publisher: publisher,
			})
			Expect(err).NotTo(HaveOccurred())
			record("S1", ptr(9.0), nil)

			res := e.RunPass(ctx)
			e.Wait()
			Expect(res.Conflicts).To(Equal(1))
			Expect(res.Incremented).To(BeZero())
			Expect(publisher.count()).To(Equal(1))

			_, err = st.Alerts.FindOpenBySensor(ctx, sensor.ID)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("recovers from a panic while evaluating a sensor", func() {
			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:   quietLogger(),
				Sensors:  st.Sensors,
				Readings: st.Readings,
				Alerts:   &failingAlerts{AlertStore: st.Alerts, failFor: sensor.ID, panics: true},
			})
			Expect(err).NotTo(HaveOccurred())
			record("S1", ptr(8.0), nil)

			Expect(e.RunPass(ctx).Failed).To(Equal(1))
		})
	})

	Describe("concurrency", func() {
		It("keeps at most one open alert per sensor across concurrent passes", func() {
			for _, id := range []string{"S2", "S3", "S4"} {
				addSensor(&store.Sensor{SensorID: id, Type: store.MetricTemperature, ZoneID: &zone.ID, MaxTemperature: ptr(6.0)})
			}
			engines := []*alerting.Engine{engine, newEngine(), newEngine()}

			for round := range 4 {
				v := 8.0
				if round == 2 {
					v = 4.0
				}
				for _, id := range []string{"S1", "S2", "S3", "S4"} {
					record(id, ptr(v), nil)
				}

				var wg sync.WaitGroup
				for _, e := range engines {
					for range 2 {
						wg.Add(1)
						go func() {
							defer GinkgoRecover()
							defer wg.Done()
							e.RunPass(ctx)
						}()
					}
				}
				wg.Wait()

				type row struct {
					SensorID uint
					N        int
				}
				var rows []row
				Expect(st.DB.Model(&store.Alert{}).
					Select("sensor_id, COUNT(*) AS n").
					Where("status <> ?", store.AlertResolved).
					Group("sensor_id").
					Scan(&rows).Error).To(Succeed())
				for _, r := range rows {
					Expect(r.N).To(BeNumerically("<=", 1), "sensor %d", r.SensorID)
				}
			}
			for _, e := range engines {
				e.Wait()
			}
		})
	})

	Describe("metrics", func() {
		It("reports the stored open alerts even when their sensors are skipped", func() {
			m := metrics.NewAlertingMetrics("engine_open_alerts_test")
			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:   quietLogger(),
				Sensors:  st.Sensors,
				Readings: st.Readings,
				Alerts:   st.Alerts,
				Metrics:  m,
			})
			Expect(err).NotTo(HaveOccurred())

			record("S1", ptr(8.0), nil)
			Expect(e.RunPass(ctx).Created).To(Equal(1))
			Expect(gaugeValue(m.OpenAlerts)).To(Equal(1.0))

			record("S1", nil, ptr(50.0))
			Expect(e.RunPass(ctx).Skipped).To(Equal(1))
			e.Wait()
			Expect(gaugeValue(m.OpenAlerts)).To(Equal(1.0))
		})
	})

	Describe("Run", func() {
		It("evaluates immediately and stops with the context", func() {
			record("S1", ptr(8.0), nil)
			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:    quietLogger(),
				Sensors:   st.Sensors,
				Readings:  st.Readings,
				Alerts:    st.Alerts,
				Publisher: publisher,
				Interval:  time.Hour,
			})
			Expect(err).NotTo(HaveOccurred())

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- e.Run(runCtx) }()

			Eventually(publisher.count).Should(Equal(1))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("skips ticks while a pass is still running", func() {
			m := metrics.NewAlertingMetrics("engine_skipped_ticks_test")
			sensors := &blockingSensors{release: make(chan struct{})}
			e, err := alerting.NewEngine(&alerting.EngineConfig{
				Logger:   quietLogger(),
				Sensors:  sensors,
				Readings: st.Readings,
				Alerts:   st.Alerts,
				Metrics:  m,
				Interval: 5 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- e.Run(runCtx) }()

			Eventually(sensors.entered.Load).Should(Equal(int32(1)))
			Eventually(func() float64 { return counterValue(m.SkippedTicks) }).Should(BeNumerically(">=", 2))
			Consistently(sensors.entered.Load, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(int32(1)))

			close(sensors.release)
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})

// resolvingAlerts resolves the open alert behind the engine's back right
// after handing it out, like a second engine process would.
type resolvingAlerts struct {
	alerting.AlertStore
	store *store.Store
	at    time.Time
}

func (r *resolvingAlerts) FindOpenBySensor(ctx context.Context, sensorID uint) (*store.Alert, error) {
	a, err := r.AlertStore.FindOpenBySensor(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	resolved := *a
	resolved.History = nil
	resolved.Status = store.AlertResolved
	resolved.ResolvedAt = &r.at
	resolved.ConsecutiveBreaches = 0
	if err := r.store.Alerts.Update(ctx, &resolved); err != nil {
		return nil, err
	}
	return a, nil
}

// blockingSensors holds every List call until release is closed.
type blockingSensors struct {
	entered atomic.Int32
	release chan struct{}
}

func (b *blockingSensors) List(ctx context.Context) ([]store.Sensor, error) {
	b.entered.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

type failingAlerts struct {
	alerting.AlertStore
	failFor uint
	panics  bool
}

func (f *failingAlerts) FindOpenBySensor(ctx context.Context, sensorID uint) (*store.Alert, error) {
	if sensorID == f.failFor {
		if f.panics {
			panic("boom")
		}
		return nil, context.DeadlineExceeded
	}
	return f.AlertStore.FindOpenBySensor(ctx, sensorID)
}
