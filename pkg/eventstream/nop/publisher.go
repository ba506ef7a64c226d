// Package nop provides a no-op eventstream publisher for deployments without
// a configured event backend.
package nop

import (
	"context"

	"github.com/omnii-ai/brainmem/pkg/eventstream"
)

// Publisher implements eventstream.Publisher by discarding events.
type Publisher struct{}

// NewPublisher creates a no-op publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish validates the event and drops it.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
