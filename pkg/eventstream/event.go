package eventstream

import (
	"time"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageIngested is emitted after a message is persisted.
	EventTypeMessageIngested = "brainmem.message.ingested"

	// EventTypeMemoryConsolidated is emitted after a memory reaches the
	// consolidated state.
	EventTypeMemoryConsolidated = "brainmem.memory.consolidated"
)

// Event is a transport-neutral payload describing a change to a user's
// memory graph. Downstream consumers (analytics, sibling services) subscribe
// to these instead of polling the graph.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	UserID        string    `json:"user_id"`

	// Message is set for message.ingested events.
	Message *brain.ChatMessage `json:"message,omitempty"`

	// Memory is set for memory.consolidated events.
	Memory *brain.Memory `json:"memory,omitempty"`
}
