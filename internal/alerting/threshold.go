// Package alerting evaluates the latest sensor readings against their safe
// ranges and drives each sensor's alert through its lifecycle.
package alerting

import "warehouse.dev/monitor/internal/store"

// Threshold is the effective safe range of one sensor metric.
type Threshold struct {
	Min *float64
	Max *float64
}

// Configured reports whether at least one bound is set.
func (t Threshold) Configured() bool {
	return t.Min != nil || t.Max != nil
}

// Breached reports whether v lies outside the range. Unset bounds never breach.
func (t Threshold) Breached(v float64) bool {
	return (t.Min != nil && v < *t.Min) || (t.Max != nil && v > *t.Max)
}

// ResolveThreshold returns the effective range of metric m for sensor s.
// Each bound comes from the flat field when set and from the nested
// thresholds otherwise. ok is false when neither bound is configured.
func ResolveThreshold(s *store.Sensor, m store.Metric) (Threshold, bool) {
	var t Threshold
	switch m {
	case store.MetricTemperature:
		t = Threshold{
			Min: firstSet(s.MinTemperature, s.Thresholds.Temperature.Min),
			Max: firstSet(s.MaxTemperature, s.Thresholds.Temperature.Max),
		}
	case store.MetricHumidity:
		t = Threshold{
			Min: firstSet(s.MinHumidity, s.Thresholds.Humidity.Min),
			Max: firstSet(s.MaxHumidity, s.Thresholds.Humidity.Max),
		}
	}
	return t, t.Configured()
}

func firstSet(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
