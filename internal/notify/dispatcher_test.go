package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/notify"
	"warehouse.dev/monitor/internal/store"
)

type fakeDirectory struct {
	users []store.User
	err   error
}

func (f *fakeDirectory) FindByRole(_ context.Context, role store.Role) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, f.err
}

func (f *fakeDirectory) FindByRoleAndZone(_ context.Context, role store.Role, zoneID uint) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		if u.Role == role && u.InZone(zoneID) {
			out = append(out, u)
		}
	}
	return out, f.err
}

type recordingChannel struct {
	mu    sync.Mutex
	name  string
	sent  []notify.Message
	fail  map[string]bool
	crash map[string]bool
	delay time.Duration
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, msg notify.Message) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.crash[msg.To] {
		panic("smtp client crashed")
	}
	if c.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.To
	}
	return out
}

var _ = Describe("Dispatcher", func() {
	var (
		logger     *slog.Logger
		directory  *fakeDirectory
		email, sms *recordingChannel
		coldRoom   = store.Zone{ID: 1, Name: "Cold Room"}
		freezer    = store.Zone{ID: 2, Name: "Freezer"}
	)

	newDispatcher := func(timeout time.Duration) *notify.Dispatcher {
		d, err := notify.NewDispatcher(&notify.DispatcherConfig{
			Logger:  logger,
			Users:   directory,
			Email:   email,
			SMS:     sms,
			Timeout: timeout,
		})
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		email = &recordingChannel{name: "email", fail: map[string]bool{}}
		sms = &recordingChannel{name: "sms", fail: map[string]bool{}}
		directory = &fakeDirectory{users: []store.User{
			{ID: 1, Role: store.RoleOperator, Email: "op-cold@example.com", PhoneNumber: "+100", Zones: []store.Zone{coldRoom}},
			{ID: 2, Role: store.RoleOperator, Email: "op-freezer@example.com", Zones: []store.Zone{freezer}},
			{ID: 3, Role: store.RoleManager, Email: "mgr-cold@example.com", Zones: []store.Zone{coldRoom}},
			{ID: 4, Role: store.RoleAdmin, Email: "admin@example.com"},
			{ID: 5, Role: store.RoleAdmin, Email: "root@example.com"},
		}}
	})

	Describe("NewDispatcher", func() {
		It("should require a logger and a user directory", func() {
			_, err := notify.NewDispatcher(&notify.DispatcherConfig{Users: directory})
			Expect(err).To(MatchError("logger cannot be nil"))
			_, err = notify.NewDispatcher(&notify.DispatcherConfig{Logger: logger})
			Expect(err).To(MatchError("user directory cannot be nil"))
		})
	})

	Describe("Recipients", func() {
		It("should route Operator alerts to operators of the zone only", func() {
			users, err := newDispatcher(0).Recipients(context.Background(), coldRoom.ID, store.RoleOperator)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].ID).To(Equal(uint(1)))
		})

		It("should route Manager alerts to managers of the zone only", func() {
			users, err := newDispatcher(0).Recipients(context.Background(), freezer.ID, store.RoleManager)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(BeEmpty())
		})

		It("should route Admin alerts to every admin regardless of zone", func() {
			users, err := newDispatcher(0).Recipients(context.Background(), freezer.ID, store.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
		})

		It("should reject unknown levels", func() {
			_, err := newDispatcher(0).Recipients(context.Background(), 1, "Owner")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Dispatch", func() {
		notification := notify.Notification{
			AlertID:  9,
			ZoneID:   1,
			ZoneName: "Cold Room",
			SensorID: "S1",
			Metric:   store.MetricTemperature,
			Value:    8,
			Unit:     "C",
			Severity: store.SeverityMedium,
			Level:    store.RoleOperator,
		}

		It("should deliver over every channel a recipient has", func() {
			res, err := newDispatcher(0).Dispatch(context.Background(), notification)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(notify.Result{Recipients: 1, Sent: 2}))
			Expect(email.recipients()).To(ConsistOf("op-cold@example.com"))
			Expect(sms.recipients()).To(ConsistOf("+100"))
			Expect(email.sent[0].Subject).To(Equal("[MEDIUM] Alert: S1"))
		})

		It("should keep delivering when one recipient fails", func() {
			email.fail["admin@example.com"] = true
			n := notification
			n.Level = store.RoleAdmin

			res, err := newDispatcher(0).Dispatch(context.Background(), n)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(notify.Result{Recipients: 2, Sent: 1, Failed: 1}))
			Expect(email.recipients()).To(ConsistOf("root@example.com"))
		})

		It("should count a panicking channel as a failed delivery", func() {
			email.crash = map[string]bool{"admin@example.com": true}
			n := notification
			n.Level = store.RoleAdmin

			var (
				res notify.Result
				err error
			)
			Expect(func() {
				res, err = newDispatcher(0).Dispatch(context.Background(), n)
			}).NotTo(Panic())
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(notify.Result{Recipients: 2, Sent: 1, Failed: 1}))
			Expect(email.recipients()).To(ConsistOf("root@example.com"))
		})

		It("should bound each delivery by the timeout", func() {
			email.delay = time.Second
			start := time.Now()

			res, err := newDispatcher(50*time.Millisecond).Dispatch(context.Background(), notification)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Failed).To(Equal(1))
			Expect(res.Sent).To(Equal(1))
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("should succeed with nobody to notify", func() {
			n := notification
			n.ZoneID = 99
			res, err := newDispatcher(0).Dispatch(context.Background(), n)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(notify.Result{}))
		})

		It("should report a failed recipient lookup", func() {
			directory.err = errors.New("db down")
			_, err := newDispatcher(0).Dispatch(context.Background(), notification)
			Expect(err).To(MatchError(ContainSubstring("db down")))
		})
	})
})
