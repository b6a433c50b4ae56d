package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/ingest"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/mq/mock"
)

type ackState struct {
	acked    bool
	nacked   bool
	requeued bool
}

// fakeAcknowledger records how each delivery was settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled map[uint64]ackState
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[tag] = ackState{acked: true}
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[tag] = ackState{nacked: true, requeued: requeue}
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) state(tag uint64) func() ackState {
	return func() ackState {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.settled[tag]
	}
}

type memReadings struct {
	mu       sync.Mutex
	readings []store.Reading
	err      error
}

func (m *memReadings) Append(_ context.Context, r *store.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.readings = append(m.readings, *r)
	return nil
}

func (m *memReadings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

type readingRecorder struct {
	mu   sync.Mutex
	seen []events.ReadingEvent
}

func (r *readingRecorder) PublishReading(_ context.Context, e events.ReadingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e)
	return nil
}

func (r *readingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

var _ = Describe("Consumer", func() {
	var (
		logger     *slog.Logger
		queue      *mock.MockClient
		deliveries chan amqp.Delivery
		acker      *fakeAcknowledger
		readings   *memReadings
		recorder   *readingRecorder
		cancel     context.CancelFunc
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		deliveries = make(chan amqp.Delivery)
		queue = mock.NewMockClient()
		queue.ConsumeChannel = deliveries
		acker = &fakeAcknowledger{settled: map[uint64]ackState{}}
		readings = &memReadings{}
		recorder = &readingRecorder{}
	})

	start := func() *ingest.Consumer {
		c, err := ingest.NewConsumer(&ingest.ConsumerConfig{
			Logger:    logger,
			Readings:  readings,
			Queue:     queue,
			Publisher: recorder,
			QueueName: "sensor-readings",
		})
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		Expect(c.Start(ctx)).To(Succeed())
		DeferCleanup(func() {
			cancel()
			Expect(c.Stop()).To(Succeed())
		})
		return c
	}

	deliver := func(tag uint64, body []byte) {
		deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: body}
	}

	encode := func(sensorID string, temp float64) []byte {
		data, err := ingest.Encode(&store.Reading{SensorID: sensorID, WarehouseID: "WH-A", Temperature: &temp})
		Expect(err).NotTo(HaveOccurred())
		return data
	}

	Describe("NewConsumer", func() {
		It("rejects a nil config", func() {
			_, err := ingest.NewConsumer(nil)
			Expect(err).To(MatchError("consumer config cannot be nil"))
		})

		It("rejects a missing logger", func() {
			_, err := ingest.NewConsumer(&ingest.ConsumerConfig{Readings: readings, Queue: queue})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("rejects a missing store", func() {
			_, err := ingest.NewConsumer(&ingest.ConsumerConfig{Logger: logger, Queue: queue})
			Expect(err).To(MatchError("reading store cannot be nil"))
		})

		It("rejects a missing queue", func() {
			_, err := ingest.NewConsumer(&ingest.ConsumerConfig{Logger: logger, Readings: readings})
			Expect(err).To(MatchError("queue client cannot be nil"))
		})
	})

	It("stores, acks and broadcasts valid readings", func() {
		start()
		deliver(1, encode("S-101", 3.2))

		Eventually(acker.state(1)).Should(Equal(ackState{acked: true}))
		Expect(readings.count()).To(Equal(1))
		Eventually(recorder.count).Should(Equal(1))
	})

	It("acks and drops malformed messages", func() {
		start()
		deliver(2, []byte("garbage"))

		Eventually(acker.state(2)).Should(Equal(ackState{acked: true}))
		Expect(readings.count()).To(BeZero())
		Expect(recorder.count()).To(BeZero())
	})

	It("requeues when the store fails", func() {
		readings.err = errors.New("database is down")
		start()
		deliver(3, encode("S-101", 3.2))

		Eventually(acker.state(3)).Should(Equal(ackState{nacked: true, requeued: true}))
		Expect(recorder.count()).To(BeZero())
	})

	It("drops readings the store rejects as invalid", func() {
		readings.err = store.ErrInvalid
		start()
		deliver(4, encode("S-101", 3.2))

		Eventually(acker.state(4)).Should(Equal(ackState{acked: true}))
	})

	It("gives up starting when the context ends before the queue is ready", func() {
		queue.ConsumeError = errors.New("not connected")
		c, err := ingest.NewConsumer(&ingest.ConsumerConfig{Logger: logger, Readings: readings, Queue: queue})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(c.Start(ctx)).To(MatchError(ContainSubstring("failed to start consuming")))
	})
})
