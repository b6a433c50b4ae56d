package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the KafkaSink.
type KafkaConfig struct {
	Logger  *slog.Logger
	Topic   string
	Brokers []string
}

// KafkaSink appends alert events to a topic, keyed by sensor id so that the
// events of one sensor stay ordered within a partition.
type KafkaSink struct {
	logger *slog.Logger
	writer *kafka.Writer
}

// NewKafkaSink creates a KafkaSink. Connections are opened lazily.
func NewKafkaSink(cfg *KafkaConfig) (*KafkaSink, error) {
	if cfg == nil {
		return nil, errors.New("kafka config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	return &KafkaSink{
		logger: cfg.Logger,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// PublishAlert implements Publisher.
func (k *KafkaSink) PublishAlert(ctx context.Context, e AlertEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Alert.Sensor.SensorID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID.String())},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write alert event: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes connections.
func (k *KafkaSink) Close() error {
	k.logger.Info("closing kafka sink", "topic", k.writer.Topic)
	return k.writer.Close()
}
