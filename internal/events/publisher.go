package events

import (
	"context"
	"errors"
	"sync"
)

// Publisher delivers alert events to one destination.
type Publisher interface {
	PublishAlert(ctx context.Context, e AlertEvent) error
}

// ReadingPublisher delivers reading events.
type ReadingPublisher interface {
	PublishReading(ctx context.Context, e ReadingEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e AlertEvent) error

// PublishAlert implements Publisher.
func (f PublisherFunc) PublishAlert(ctx context.Context, e AlertEvent) error {
	return f(ctx, e)
}

// Multi publishes to several destinations concurrently. A failing
// destination does not prevent delivery to the others.
type Multi struct {
	publishers []Publisher
}

// NewMulti skips nil publishers. With none left PublishAlert is a no-op.
func NewMulti(publishers ...Publisher) *Multi {
	m := &Multi{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len returns the number of destinations.
func (m *Multi) Len() int {
	return len(m.publishers)
}

// PublishAlert implements Publisher and joins the errors of all destinations.
func (m *Multi) PublishAlert(ctx context.Context, e AlertEvent) error {
	if len(m.publishers) == 1 {
		return m.publishers[0].PublishAlert(ctx, e)
	}

	errs := make([]error, len(m.publishers))
	var wg sync.WaitGroup
	for i, p := range m.publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.PublishAlert(ctx, e)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
