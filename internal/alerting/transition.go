package alerting

import (
	"strconv"
	"time"

	"warehouse.dev/monitor/internal/store"
)

// Consecutive breach counts at which an alert escalates.
const (
	managerThreshold = 3
	adminThreshold   = 6
)

const resolvedNote = "Sensor reading returned to normal."

// Observation is one evaluated reading of a sensor.
type Observation struct {
	SensorID uint
	ZoneID   uint
	Value    float64
	Breached bool
}

// OutcomeKind classifies what a transition did to the sensor's alert.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeCreated
	OutcomeIncremented
	OutcomeEscalated
	OutcomeResolved
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeIncremented:
		return "incremented"
	case OutcomeEscalated:
		return "escalated"
	case OutcomeResolved:
		return "resolved"
	default:
		return "none"
	}
}

// EffectKind is a side effect to run once a transition is persisted.
type EffectKind int

const (
	EffectPublish EffectKind = iota
	EffectNotify
)

// Effect is one side effect. Level is the escalation level to notify.
type Effect struct {
	Level store.Role
	Kind  EffectKind
}

// Outcome is the result of a transition. Alert is nil for OutcomeNone.
type Outcome struct {
	Alert   *store.Alert
	Effects []Effect
	Kind    OutcomeKind
}

// Notifies reports whether the outcome carries a notify effect.
func (o Outcome) Notifies() bool {
	for _, e := range o.Effects {
		if e.Kind == EffectNotify {
			return true
		}
	}
	return false
}

// Transition computes the next state of a sensor's alert. current is the
// sensor's non-resolved alert or nil, and is never modified.
func Transition(current *store.Alert, obs Observation, now time.Time) Outcome {
	now = now.UTC()

	switch {
	case obs.Breached && current == nil:
		alert := &store.Alert{
			SensorID:            obs.SensorID,
			ZoneID:              obs.ZoneID,
			Status:              store.AlertTriggered,
			Severity:            store.SeverityMedium,
			EscalationLevel:     store.RoleOperator,
			ConsecutiveBreaches: 1,
			TriggeredAt:         now,
			History: []store.AlertHistory{{
				Status:    store.HistoryTriggered,
				Timestamp: now,
				Note:      "Initial breach detected. Value: " + strconv.FormatFloat(obs.Value, 'f', -1, 64),
			}},
		}
		return Outcome{
			Alert: alert,
			Kind:  OutcomeCreated,
			Effects: []Effect{
				{Kind: EffectPublish},
				{Kind: EffectNotify, Level: store.RoleOperator},
			},
		}

	case obs.Breached:
		alert := clone(current)
		alert.ConsecutiveBreaches++

		var next store.Role
		switch {
		case alert.ConsecutiveBreaches >= adminThreshold && alert.EscalationLevel != store.RoleAdmin:
			next = store.RoleAdmin
		case alert.ConsecutiveBreaches >= managerThreshold && alert.EscalationLevel == store.RoleOperator:
			next = store.RoleManager
		}
		if next == "" {
			return Outcome{Alert: alert, Kind: OutcomeIncremented, Effects: []Effect{{Kind: EffectPublish}}}
		}

		alert.EscalationLevel = next
		alert.History = append(alert.History, store.AlertHistory{
			AlertID:   alert.ID,
			Status:    store.HistoryEscalated,
			Timestamp: now,
			Note:      "Escalated to " + string(next),
		})
		return Outcome{
			Alert: alert,
			Kind:  OutcomeEscalated,
			Effects: []Effect{
				{Kind: EffectPublish},
				{Kind: EffectNotify, Level: next},
			},
		}

	case current != nil:
		alert := clone(current)
		alert.Status = store.AlertResolved
		alert.ResolvedAt = &now
		alert.ConsecutiveBreaches = 0
		alert.History = append(alert.History, store.AlertHistory{
			AlertID:   alert.ID,
			Status:    store.HistoryResolved,
			Timestamp: now,
			Note:      resolvedNote,
		})
		return Outcome{Alert: alert, Kind: OutcomeResolved, Effects: []Effect{{Kind: EffectPublish}}}

	default:
		return Outcome{Kind: OutcomeNone}
	}
}

func clone(a *store.Alert) *store.Alert {
	c := *a
	c.History = append(make([]store.AlertHistory, 0, len(a.History)+1), a.History...)
	return &c
}
