package alerting_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/internal/store"
)

var _ = Describe("ResolveThreshold", func() {
	It("prefers the flat fields", func() {
		s := &store.Sensor{
			MinTemperature: ptr(2.0),
			MaxTemperature: ptr(6.0),
			Thresholds: store.Thresholds{
				Temperature: store.Range{Min: ptr(0.0), Max: ptr(10.0)},
			},
		}
		t, ok := alerting.ResolveThreshold(s, store.MetricTemperature)
		Expect(ok).To(BeTrue())
		Expect(*t.Min).To(Equal(2.0))
		Expect(*t.Max).To(Equal(6.0))
	})

	It("falls back to nested thresholds per bound", func() {
		s := &store.Sensor{
			MinHumidity: ptr(30.0),
			Thresholds: store.Thresholds{
				Humidity: store.Range{Min: ptr(10.0), Max: ptr(70.0)},
			},
		}
		t, ok := alerting.ResolveThreshold(s, store.MetricHumidity)
		Expect(ok).To(BeTrue())
		Expect(*t.Min).To(Equal(30.0))
		Expect(*t.Max).To(Equal(70.0))
	})

	It("does not mix metrics", func() {
		s := &store.Sensor{MinTemperature: ptr(2.0)}
		_, ok := alerting.ResolveThreshold(s, store.MetricHumidity)
		Expect(ok).To(BeFalse())
	})

	It("reports unconfigured sensors", func() {
		_, ok := alerting.ResolveThreshold(&store.Sensor{}, store.MetricTemperature)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Threshold", func() {
	DescribeTable("Breached",
		func(t alerting.Threshold, v float64, want bool) {
			Expect(t.Breached(v)).To(Equal(want))
		},
		Entry("below min", alerting.Threshold{Min: ptr(2.0), Max: ptr(6.0)}, 1.9, true),
		Entry("above max", alerting.Threshold{Min: ptr(2.0), Max: ptr(6.0)}, 8.0, true),
		Entry("on min", alerting.Threshold{Min: ptr(2.0), Max: ptr(6.0)}, 2.0, false),
		Entry("on max", alerting.Threshold{Min: ptr(2.0), Max: ptr(6.0)}, 6.0, false),
		Entry("inside", alerting.Threshold{Min: ptr(2.0), Max: ptr(6.0)}, 4.0, false),
		Entry("min only, far above", alerting.Threshold{Min: ptr(40.0)}, 1e6, false),
		Entry("min only, below", alerting.Threshold{Min: ptr(40.0)}, 39.0, true),
		Entry("max only, far below", alerting.Threshold{Max: ptr(6.0)}, -1e6, false),
	)
})
