// Package eventstream defines the event payloads and publisher contract for
// notifying downstream systems of memory-graph changes. Publishing is always
// fire-and-forget from the engine's point of view: a failed publish is
// logged by the caller and never fails the write path.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
