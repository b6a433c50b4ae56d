// Package notify routes alert notifications to the users responsible for a
// zone and delivers them over email and SMS.
package notify

import (
	"fmt"
	"strconv"
	"strings"

	"warehouse.dev/monitor/internal/store"
)

// Notification describes one alert that needs human attention.
type Notification struct {
	Min      *float64
	Max      *float64
	SensorID string
	ZoneName string
	Metric   store.Metric
	Unit     string
	Severity store.Severity
	Level    store.Role
	Value    float64
	AlertID  uint
	ZoneID   uint
}

// Message is a rendered notification addressed to one destination.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Subject renders "[SEVERITY] Alert: <sensor>".
func (n *Notification) Subject() string {
	severity := n.Severity
	if severity == "" {
		severity = store.SeverityMedium
	}
	return fmt.Sprintf("[%s] Alert: %s", strings.ToUpper(string(severity)), n.SensorID)
}

// Body renders the human readable alert text.
func (n *Notification) Body() string {
	return fmt.Sprintf(
		"Alert for sensor %q in zone %q: %s of %s%s is outside the safe range of %s to %s. Please check the dashboard.",
		n.SensorID, n.ZoneName, n.Metric,
		formatValue(n.Value), n.Unit,
		formatBound(n.Min, n.Unit), formatBound(n.Max, n.Unit),
	)
}

// MessageTo renders the notification for one address.
func (n *Notification) MessageTo(to string) Message {
	return Message{To: to, Subject: n.Subject(), Body: n.Body()}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBound(b *float64, unit string) string {
	if b == nil {
		return "n/a"
	}
	return formatValue(*b) + unit
}
