// Package events carries alert and reading updates to dashboards, to the
// main application and to an optional Kafka topic.
package events

import (
	"time"

	"github.com/google/uuid"

	"warehouse.dev/monitor/internal/store"
)

// Event types as seen by dashboard subscribers.
const (
	TypeAlertUpdate = "alert-update"
	TypeNewReading  = "new-reading"
)

// SensorRef is the denormalised sensor of an alert payload.
type SensorRef struct {
	SensorID string       `json:"sensorId"`
	Type     store.Metric `json:"type"`
	ID       uint         `json:"id"`
}

// ZoneRef is the denormalised zone of an alert payload.
type ZoneRef struct {
	Name string `json:"name"`
	ID   uint   `json:"id"`
}

// HistoryEntry mirrors store.AlertHistory on the wire.
type HistoryEntry struct {
	Timestamp time.Time           `json:"timestamp"`
	Status    store.HistoryStatus `json:"status"`
	Note      string              `json:"note"`
}

// AlertPayload is the full alert state carried by an alert-update event.
type AlertPayload struct {
	TriggeredAt         time.Time         `json:"triggeredAt"`
	AcknowledgedAt      *time.Time        `json:"acknowledgedAt,omitempty"`
	ResolvedAt          *time.Time        `json:"resolvedAt,omitempty"`
	AcknowledgedBy      *uint             `json:"acknowledgedBy,omitempty"`
	Sensor              SensorRef         `json:"sensor"`
	Zone                ZoneRef           `json:"zone"`
	Status              store.AlertStatus `json:"status"`
	Severity            store.Severity    `json:"severity"`
	EscalationLevel     store.Role        `json:"escalationLevel"`
	History             []HistoryEntry    `json:"history"`
	ConsecutiveBreaches int               `json:"consecutiveBreaches"`
	ID                  uint              `json:"id"`
}

// AlertEvent announces a change of an alert.
type AlertEvent struct {
	OccurredAt time.Time    `json:"occurredAt"`
	Type       string       `json:"type"`
	Alert      AlertPayload `json:"alert"`
	ID         uuid.UUID    `json:"id"`
}

// ReadingEvent announces a newly stored reading.
type ReadingEvent struct {
	OccurredAt time.Time     `json:"occurredAt"`
	Type       string        `json:"type"`
	Reading    store.Reading `json:"reading"`
	ID         uuid.UUID     `json:"id"`
}

// NewAlertEvent snapshots a. The sensor and zone are taken from a.Sensor and
// a.Zone when loaded; otherwise only their ids are set.
func NewAlertEvent(a *store.Alert) AlertEvent {
	p := AlertPayload{
		ID:                  a.ID,
		Sensor:              SensorRef{ID: a.SensorID},
		Zone:                ZoneRef{ID: a.ZoneID},
		Status:              a.Status,
		Severity:            a.Severity,
		EscalationLevel:     a.EscalationLevel,
		ConsecutiveBreaches: a.ConsecutiveBreaches,
		TriggeredAt:         a.TriggeredAt,
		AcknowledgedAt:      a.AcknowledgedAt,
		AcknowledgedBy:      a.AcknowledgedBy,
		ResolvedAt:          a.ResolvedAt,
		History:             make([]HistoryEntry, len(a.History)),
	}
	if a.Sensor != nil {
		p.Sensor.SensorID = a.Sensor.SensorID
		p.Sensor.Type = a.Sensor.Type
	}
	if a.Zone != nil {
		p.Zone.Name = a.Zone.Name
	}
	for i, h := range a.History {
		p.History[i] = HistoryEntry{Status: h.Status, Timestamp: h.Timestamp, Note: h.Note}
	}

	return AlertEvent{
		ID:         uuid.New(),
		Type:       TypeAlertUpdate,
		OccurredAt: time.Now().UTC(),
		Alert:      p,
	}
}

// NewReadingEvent wraps a stored reading.
func NewReadingEvent(r store.Reading) ReadingEvent {
	return ReadingEvent{
		ID:         uuid.New(),
		Type:       TypeNewReading,
		OccurredAt: time.Now().UTC(),
		Reading:    r,
	}
}
