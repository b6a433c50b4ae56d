package alerting_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/internal/store"
)

var _ = Describe("Transition", func() {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	breach := alerting.Observation{SensorID: 1, ZoneID: 2, Value: 8, Breached: true}
	normal := alerting.Observation{SensorID: 1, ZoneID: 2, Value: 4}

	open := func(level store.Role, breaches int) *store.Alert {
		return &store.Alert{
			ID:                  10,
			SensorID:            1,
			ZoneID:              2,
			Status:              store.AlertTriggered,
			Severity:            store.SeverityMedium,
			EscalationLevel:     level,
			ConsecutiveBreaches: breaches,
			TriggeredAt:         now.Add(-time.Hour),
			History: []store.AlertHistory{
				{ID: 1, AlertID: 10, Status: store.HistoryTriggered, Note: "Initial breach detected. Value: 8"},
			},
		}
	}

	It("creates a triggered alert on the first breach", func() {
		out := alerting.Transition(nil, breach, now)

		Expect(out.Kind).To(Equal(alerting.OutcomeCreated))
		Expect(out.Alert.Status).To(Equal(store.AlertTriggered))
		Expect(out.Alert.Severity).To(Equal(store.SeverityMedium))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleOperator))
		Expect(out.Alert.ConsecutiveBreaches).To(Equal(1))
		Expect(out.Alert.TriggeredAt).To(Equal(now))
		Expect(out.Alert.History).To(HaveLen(1))
		Expect(out.Alert.History[0].Status).To(Equal(store.HistoryTriggered))
		Expect(out.Alert.History[0].Note).To(Equal("Initial breach detected. Value: 8"))
		Expect(out.Effects).To(ConsistOf(
			alerting.Effect{Kind: alerting.EffectPublish},
			alerting.Effect{Kind: alerting.EffectNotify, Level: store.RoleOperator},
		))
	})

	It("formats fractional values without padding", func() {
		obs := breach
		obs.Value = 8.25
		out := alerting.Transition(nil, obs, now)
		Expect(out.Alert.History[0].Note).To(Equal("Initial breach detected. Value: 8.25"))
	})

	It("counts a repeated breach and publishes without notifying", func() {
		out := alerting.Transition(open(store.RoleOperator, 1), breach, now)

		Expect(out.Kind).To(Equal(alerting.OutcomeIncremented))
		Expect(out.Alert.ConsecutiveBreaches).To(Equal(2))
		Expect(out.Alert.History).To(HaveLen(1))
		Expect(out.Notifies()).To(BeFalse())
		Expect(out.Effects).To(ConsistOf(alerting.Effect{Kind: alerting.EffectPublish}))
	})

	It("escalates to Manager at three breaches", func() {
		out := alerting.Transition(open(store.RoleOperator, 2), breach, now)

		Expect(out.Kind).To(Equal(alerting.OutcomeEscalated))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleManager))
		Expect(out.Alert.History).To(HaveLen(2))
		Expect(out.Alert.History[1].Status).To(Equal(store.HistoryEscalated))
		Expect(out.Alert.History[1].Note).To(Equal("Escalated to Manager"))
		Expect(out.Effects).To(ContainElement(alerting.Effect{Kind: alerting.EffectNotify, Level: store.RoleManager}))
	})

	It("escalates to Admin at six breaches", func() {
		out := alerting.Transition(open(store.RoleManager, 5), breach, now)

		Expect(out.Kind).To(Equal(alerting.OutcomeEscalated))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleAdmin))
		Expect(out.Alert.History[1].Note).To(Equal("Escalated to Admin"))
		Expect(out.Effects).To(ContainElement(alerting.Effect{Kind: alerting.EffectNotify, Level: store.RoleAdmin}))
	})

	It("goes straight to Admin from Operator once the count reaches six", func() {
		out := alerting.Transition(open(store.RoleOperator, 7), breach, now)
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleAdmin))
	})

	It("stays at Manager between three and six breaches", func() {
		out := alerting.Transition(open(store.RoleManager, 3), breach, now)
		Expect(out.Kind).To(Equal(alerting.OutcomeIncremented))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleManager))
	})

	It("never de-escalates after an external reset of the count", func() {
		out := alerting.Transition(open(store.RoleAdmin, 0), breach, now)
		Expect(out.Kind).To(Equal(alerting.OutcomeIncremented))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleAdmin))

		out = alerting.Transition(open(store.RoleManager, 1), breach, now)
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleManager))
	})

	It("keeps an acknowledged alert acknowledged while escalating", func() {
		current := open(store.RoleOperator, 2)
		current.Status = store.AlertAcknowledged

		out := alerting.Transition(current, breach, now)
		Expect(out.Alert.Status).To(Equal(store.AlertAcknowledged))
		Expect(out.Alert.EscalationLevel).To(Equal(store.RoleManager))
	})

	It("resolves an open alert when the reading is back in range", func() {
		out := alerting.Transition(open(store.RoleManager, 4), normal, now)

		Expect(out.Kind).To(Equal(alerting.OutcomeResolved))
		Expect(out.Alert.Status).To(Equal(store.AlertResolved))
		Expect(out.Alert.ResolvedAt).To(HaveValue(Equal(now)))
		Expect(out.Alert.ConsecutiveBreaches).To(BeZero())
		Expect(out.Alert.History[len(out.Alert.History)-1].Note).To(Equal("Sensor reading returned to normal."))
		Expect(out.Notifies()).To(BeFalse())
	})

	It("resolves acknowledged alerts too", func() {
		current := open(store.RoleOperator, 1)
		current.Status = store.AlertAcknowledged
		Expect(alerting.Transition(current, normal, now).Kind).To(Equal(alerting.OutcomeResolved))
	})

	It("does nothing without a breach or an alert", func() {
		out := alerting.Transition(nil, normal, now)
		Expect(out.Kind).To(Equal(alerting.OutcomeNone))
		Expect(out.Alert).To(BeNil())
		Expect(out.Effects).To(BeEmpty())
	})

	It("leaves the current alert untouched", func() {
		current := open(store.RoleOperator, 2)
		_ = alerting.Transition(current, breach, now)

		Expect(current.ConsecutiveBreaches).To(Equal(2))
		Expect(current.EscalationLevel).To(Equal(store.RoleOperator))
		Expect(current.History).To(HaveLen(1))
	})

	It("names its outcomes", func() {
		Expect(alerting.OutcomeEscalated.String()).To(Equal("escalated"))
		Expect(alerting.OutcomeNone.String()).To(Equal("none"))
	})
})
