package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/logger"
	"warehouse.dev/monitor/pkg/metrics"
	"warehouse.dev/monitor/pkg/mq"
)

// consumeRetry is how often Start retries while the queue is still connecting.
const consumeRetry = 500 * time.Millisecond

// ReadingAppender stores readings.
type ReadingAppender interface {
	Append(ctx context.Context, r *store.Reading) error
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger    *slog.Logger
	Readings  ReadingAppender
	Queue     mq.ClientInterface
	Publisher events.ReadingPublisher
	Metrics   *metrics.MQMetrics
	QueueName string
}

// Consumer consumes reading messages from RabbitMQ and appends them to the
// reading store.
type Consumer struct {
	logger    *slog.Logger
	readings  ReadingAppender
	queue     mq.ClientInterface
	publisher events.ReadingPublisher
	metrics   *metrics.MQMetrics
	queueName string
	done      chan struct{}
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Readings == nil {
		return nil, errors.New("reading store cannot be nil")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue client cannot be nil")
	}

	return &Consumer{
		logger:    logger.WithComponent(cfg.Logger, "ingest"),
		readings:  cfg.Readings,
		queue:     cfg.Queue,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		queueName: cfg.QueueName,
		done:      make(chan struct{}),
	}, nil
}

// Start begins consuming messages. It waits for the queue connection until
// ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer", "queue", c.queueName)

	var deliveries <-chan amqp.Delivery
	for {
		var err error
		deliveries, err = c.queue.Consume()
		if err == nil {
			break
		}
		c.logger.Debug("queue not ready, retrying", "error", err)
		select {
		case <-ctx.Done():
			close(c.done)
			return fmt.Errorf("failed to start consuming: %w", err)
		case <-time.After(consumeRetry):
		}
	}

	c.logger.Info("consumer started, waiting for messages")
	go c.processMessages(ctx, deliveries)
	return nil
}

func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	start := time.Now()

	reading, err := Decode(delivery.Body)
	if err != nil {
		c.logger.Error("dropping malformed reading", "error", err)
		c.fail("malformed")
		// Malformed messages would fail forever; drop them.
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	if err := c.readings.Append(ctx, reading); err != nil {
		log := logger.WithContext(c.logger, slog.String("sensor", reading.SensorID))
		if errors.Is(err, store.ErrInvalid) {
			log.Error("dropping invalid reading", "error", err)
			c.fail("invalid")
			if ackErr := delivery.Ack(false); ackErr != nil {
				log.Error("failed to ack message", "error", ackErr)
			}
			return
		}

		log.Error("failed to save reading", "error", err)
		c.fail("store")
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", "error", nackErr)
		} else if c.metrics != nil {
			c.metrics.Requeued.WithLabelValues(c.queueName).Inc()
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(c.queueName).Inc()
		c.metrics.ConsumeDuration.WithLabelValues(c.queueName).Observe(time.Since(start).Seconds())
	}

	if c.publisher != nil {
		if err := c.publisher.PublishReading(ctx, events.NewReadingEvent(*reading)); err != nil {
			c.logger.Warn("failed to broadcast reading", "sensor", reading.SensorID, "error", err)
		}
	}

	c.logger.Debug("reading stored", "sensor", reading.SensorID, "timestamp", reading.Timestamp)
}

func (c *Consumer) fail(reason string) {
	if c.metrics != nil {
		c.metrics.ConsumptionFailures.WithLabelValues(c.queueName, reason).Inc()
	}
}

// Stop closes the queue client and waits for message processing to end.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.queue.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	<-c.done
	c.logger.Info("consumer stopped")
	return nil
}
