package simulator_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/simulator"
)

var _ = Describe("Generator", func() {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	device := simulator.Device{SensorID: "S-101", WarehouseID: "WH-A"}

	It("draws values inside the ranges rounded to two decimals", func() {
		g := simulator.NewGenerator(42, simulator.DefaultTemperature, simulator.DefaultHumidity)
		for range 200 {
			r := g.Reading(device, now)
			Expect(*r.Temperature).To(BeNumerically(">=", 2.5))
			Expect(*r.Temperature).To(BeNumerically("<=", 4.5))
			Expect(*r.Humidity).To(BeNumerically(">=", 85.0))
			Expect(*r.Humidity).To(BeNumerically("<=", 95.0))
			Expect(math.Round(*r.Temperature*100) / 100).To(Equal(*r.Temperature))
		}
	})

	It("stamps the device and time in UTC", func() {
		r := simulator.NewGenerator(1, simulator.DefaultTemperature, simulator.DefaultHumidity).Reading(device, now)
		Expect(r.SensorID).To(Equal("S-101"))
		Expect(r.WarehouseID).To(Equal("WH-A"))
		Expect(r.Timestamp.Location()).To(Equal(time.UTC))
		Expect(r.Timestamp.Equal(now)).To(BeTrue())
	})

	It("swaps inverted ranges", func() {
		g := simulator.NewGenerator(7, simulator.Range{Min: 10, Max: 5}, simulator.Range{Min: 60, Max: 40})
		for range 50 {
			r := g.Reading(device, now)
			Expect(*r.Temperature).To(BeNumerically("~", 7.5, 2.5))
			Expect(*r.Humidity).To(BeNumerically("~", 50, 10))
		}
	})

	It("honours per-device overrides", func() {
		g := simulator.NewGenerator(3, simulator.DefaultTemperature, simulator.DefaultHumidity)
		hot := device
		hot.Temperature = &simulator.Range{Min: 20, Max: 21}
		for range 20 {
			Expect(*g.Reading(hot, now).Temperature).To(BeNumerically("~", 20.5, 0.5))
		}
	})

	It("generates distinct sensor ids across the given warehouses", func() {
		g := simulator.NewGenerator(11, simulator.DefaultTemperature, simulator.DefaultHumidity)
		devices := g.RandomDevices(25, []string{"WH-A", "WH-B"})

		Expect(devices).To(HaveLen(25))
		seen := map[string]bool{}
		for _, d := range devices {
			Expect(d.SensorID).To(MatchRegexp(`^S-\d{3}$`))
			Expect(d.WarehouseID).To(BeElementOf("WH-A", "WH-B"))
			Expect(seen[d.SensorID]).To(BeFalse())
			seen[d.SensorID] = true
		}
	})

	It("has stable defaults", func() {
		Expect(simulator.DefaultDevices()).To(HaveLen(3))
		Expect(simulator.DefaultDevices()[2]).To(Equal(simulator.Device{SensorID: "S-201", WarehouseID: "WH-B"}))
	})
})
