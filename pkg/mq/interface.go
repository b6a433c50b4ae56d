package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface is the queue surface used by the reading consumer and the simulator.
type ClientInterface interface {
	// Push publishes data and blocks until the broker confirms it.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes data without waiting for a confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume streams deliveries. Each delivery must be acked or nacked.
	Consume() (<-chan amqp.Delivery, error)

	// Close shuts down the channel and the connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)
