// Package simulator produces synthetic warehouse sensor readings.
package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"warehouse.dev/monitor/internal/store"
)

// Range bounds generated values. Inverted bounds are swapped.
type Range struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

func (r Range) normalized() Range {
	if r.Min > r.Max {
		return Range{Min: r.Max, Max: r.Min}
	}
	return r
}

// Default value ranges of a cold-storage warehouse.
var (
	DefaultTemperature = Range{Min: 2.5, Max: 4.5}
	DefaultHumidity    = Range{Min: 85, Max: 95}
)

// Device is one simulated sensor. Temperature and Humidity override the
// generator's ranges when set.
type Device struct {
	Temperature *Range `mapstructure:"temperature"`
	Humidity    *Range `mapstructure:"humidity"`
	SensorID    string `mapstructure:"sensor_id"`
	WarehouseID string `mapstructure:"warehouse_id"`
}

// DefaultDevices returns the sensors simulated when none are configured.
func DefaultDevices() []Device {
	return []Device{
		{SensorID: "S-101", WarehouseID: "WH-A"},
		{SensorID: "S-102", WarehouseID: "WH-A"},
		{SensorID: "S-201", WarehouseID: "WH-B"},
	}
}

// Generator draws readings uniformly from its ranges.
type Generator struct {
	faker       *gofakeit.Faker
	temperature Range
	humidity    Range
	mu          sync.Mutex
}

// NewGenerator creates a Generator. A zero seed picks a random one.
func NewGenerator(seed uint64, temperature, humidity Range) *Generator {
	return &Generator{
		faker:       gofakeit.New(seed),
		temperature: temperature.normalized(),
		humidity:    humidity.normalized(),
	}
}

// RandomDevices returns n devices with ids like S-123 spread over warehouses.
func (g *Generator) RandomDevices(n int, warehouses []string) []Device {
	if len(warehouses) == 0 {
		warehouses = []string{"WH-A"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, n)
	devices := make([]Device, 0, n)
	for len(devices) < n {
		id := g.faker.Numerify("S-###")
		if seen[id] {
			continue
		}
		seen[id] = true
		devices = append(devices, Device{
			SensorID:    id,
			WarehouseID: g.faker.RandomString(warehouses),
		})
	}
	return devices
}

// Reading generates one reading for d at now.
func (g *Generator) Reading(d Device, now time.Time) store.Reading {
	temp, hum := g.temperature, g.humidity
	if d.Temperature != nil {
		temp = d.Temperature.normalized()
	}
	if d.Humidity != nil {
		hum = d.Humidity.normalized()
	}

	g.mu.Lock()
	t := round2(g.faker.Float64Range(temp.Min, temp.Max))
	h := round2(g.faker.Float64Range(hum.Min, hum.Max))
	g.mu.Unlock()

	return store.Reading{
		SensorID:    d.SensorID,
		WarehouseID: d.WarehouseID,
		Timestamp:   now.UTC(),
		Temperature: &t,
		Humidity:    &h,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
