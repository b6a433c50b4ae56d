package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/store"
)

var _ = Describe("SensorRepository", func() {
	var (
		ctx  context.Context
		s    *store.Store
		zone *store.Zone
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newTestStore()
		zone = &store.Zone{Name: "Cold Room"}
		Expect(s.Zones.Create(ctx, zone)).To(Succeed())
	})

	It("should default the temperature unit to C", func() {
		sensor := &store.Sensor{SensorID: "S-101", Type: store.MetricTemperature, ZoneID: &zone.ID}
		Expect(s.Sensors.Create(ctx, sensor)).To(Succeed())
		Expect(sensor.TemperatureUnit).To(Equal("C"))
		Expect(sensor.Unit()).To(Equal("C"))
	})

	It("should keep legacy and nested thresholds apart", func() {
		sensor := &store.Sensor{
			SensorID:       "S-102",
			Type:           store.MetricTemperature,
			ZoneID:         &zone.ID,
			MaxTemperature: ptr(6.0),
			Thresholds: store.Thresholds{
				Temperature: store.Range{Min: ptr(2.0), Max: ptr(8.0)},
			},
		}
		Expect(s.Sensors.Create(ctx, sensor)).To(Succeed())

		got, err := s.Sensors.GetBySensorID(ctx, "S-102")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.MinTemperature).To(BeNil())
		Expect(*got.MaxTemperature).To(Equal(6.0))
		Expect(*got.Thresholds.Temperature.Min).To(Equal(2.0))
		Expect(*got.Thresholds.Temperature.Max).To(Equal(8.0))
		Expect(got.Thresholds.Humidity.Min).To(BeNil())
		Expect(got.Zone).NotTo(BeNil())
		Expect(got.Zone.Name).To(Equal("Cold Room"))
	})

	It("should reject invalid sensors", func() {
		Expect(s.Sensors.Create(ctx, &store.Sensor{Type: store.MetricHumidity})).To(MatchError(store.ErrInvalid))
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: "pressure"})).To(MatchError(store.ErrInvalid))
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: store.MetricTemperature, TemperatureUnit: "K"})).To(MatchError(store.ErrInvalid))
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: store.MetricTemperature, ZoneID: ptr(uint(99))})).To(MatchError(store.ErrInvalid))
	})

	It("should refuse duplicate sensor ids", func() {
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: store.MetricHumidity})).To(Succeed())
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: store.MetricHumidity})).To(MatchError(store.ErrAlreadyExists))
	})

	It("should update thresholds and clear a bound", func() {
		sensor := &store.Sensor{SensorID: "S-1", Type: store.MetricHumidity, ZoneID: &zone.ID, MinHumidity: ptr(40.0)}
		Expect(s.Sensors.Create(ctx, sensor)).To(Succeed())

		sensor.MinHumidity = nil
		sensor.MaxHumidity = ptr(70.0)
		Expect(s.Sensors.Update(ctx, sensor)).To(Succeed())

		got, err := s.Sensors.Get(ctx, sensor.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.MinHumidity).To(BeNil())
		Expect(*got.MaxHumidity).To(Equal(70.0))
	})

	It("should list sensors with zones and delete them", func() {
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-2", Type: store.MetricHumidity, ZoneID: &zone.ID})).To(Succeed())
		Expect(s.Sensors.Create(ctx, &store.Sensor{SensorID: "S-1", Type: store.MetricTemperature})).To(Succeed())

		sensors, err := s.Sensors.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sensors).To(HaveLen(2))
		Expect(sensors[0].SensorID).To(Equal("S-1"))
		Expect(sensors[0].Zone).To(BeNil())
		Expect(sensors[1].Zone.Name).To(Equal("Cold Room"))

		Expect(s.Sensors.Delete(ctx, sensors[0].ID)).To(Succeed())
		Expect(s.Sensors.Delete(ctx, sensors[0].ID)).To(MatchError(store.ErrNotFound))
	})
})
