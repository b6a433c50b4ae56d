package events_test

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
)

var _ = Describe("Multi", func() {
	var e events.AlertEvent

	BeforeEach(func() {
		e = events.NewAlertEvent(&store.Alert{ID: 1})
	})

	It("skips nil publishers", func() {
		m := events.NewMulti(nil, events.PublisherFunc(func(context.Context, events.AlertEvent) error { return nil }), nil)
		Expect(m.Len()).To(Equal(1))
	})

	It("is a no-op without publishers", func() {
		Expect(events.NewMulti().PublishAlert(context.Background(), e)).To(Succeed())
	})

	It("delivers to every destination even when one fails", func() {
		var delivered atomic.Int32
		ok := events.PublisherFunc(func(context.Context, events.AlertEvent) error {
			delivered.Add(1)
			return nil
		})
		boom := errors.New("boom")
		failing := events.PublisherFunc(func(context.Context, events.AlertEvent) error { return boom })

		err := events.NewMulti(ok, failing, ok).PublishAlert(context.Background(), e)

		Expect(err).To(MatchError(boom))
		Expect(delivered.Load()).To(Equal(int32(2)))
	})

	It("joins the errors of all failing destinations", func() {
		errA, errB := errors.New("a"), errors.New("b")
		m := events.NewMulti(
			events.PublisherFunc(func(context.Context, events.AlertEvent) error { return errA }),
			events.PublisherFunc(func(context.Context, events.AlertEvent) error { return errB }),
		)

		err := m.PublishAlert(context.Background(), e)
		Expect(errors.Is(err, errA)).To(BeTrue())
		Expect(errors.Is(err, errB)).To(BeTrue())
	})
})
