// Package mock provides a hand-written mq.ClientInterface for consumer and simulator tests.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"warehouse.dev/monitor/pkg/mq"
)

// MockClient records calls and returns configurable results.
// The *Func hooks take precedence over the plain error fields.
type MockClient struct {
	mu sync.Mutex

	PushFunc  func(ctx context.Context, data []byte) error
	PushError error
	PushCalls []PushCall

	UnsafePushFunc  func(ctx context.Context, data []byte) error
	UnsafePushError error
	UnsafePushCalls []PushCall

	ConsumeFunc    func() (<-chan amqp.Delivery, error)
	ConsumeChannel <-chan amqp.Delivery
	ConsumeError   error
	ConsumeCalls   int

	CloseFunc  func() error
	CloseError error
	CloseCalls int
}

// PushCall records the arguments of a Push or UnsafePush call.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// NewMockClient creates a MockClient whose calls all succeed.
func NewMockClient() *MockClient {
	return &MockClient{
		ConsumeChannel: make(chan amqp.Delivery),
	}
}

// Push implements ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = append(m.PushCalls, PushCall{Ctx: ctx, Data: data})
	if m.PushFunc != nil {
		return m.PushFunc(ctx, data)
	}
	return m.PushError
}

// UnsafePush implements ClientInterface.
func (m *MockClient) UnsafePush(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsafePushCalls = append(m.UnsafePushCalls, PushCall{Ctx: ctx, Data: data})
	if m.UnsafePushFunc != nil {
		return m.UnsafePushFunc(ctx, data)
	}
	return m.UnsafePushError
}

// Consume implements ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConsumeCalls++
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc()
	}
	return m.ConsumeChannel, m.ConsumeError
}

// Close implements ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return m.CloseError
}

// Pushed returns a copy of the payloads passed to Push so far.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.PushCalls))
	for i, c := range m.PushCalls {
		out[i] = c.Data
	}
	return out
}

// Reset clears all recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = nil
	m.UnsafePushCalls = nil
	m.ConsumeCalls = 0
	m.CloseCalls = 0
}

var _ mq.ClientInterface = (*MockClient)(nil)
