// Package graph defines the storage contract for the brain-memory graph:
// typed CRUD over messages, concepts, memories, tags, and the edges between
// them. The engine is written against this interface; concrete backends live
// in the subpackages (inmemory, sqlite, postgres).
package graph

import (
	"context"
	"time"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

// MentionedConcept pairs a concept with the message that mentions it,
// so callers can correlate concepts back to channels.
type MentionedConcept struct {
	brain.Concept

	MessageID string  `json:"message_id"`
	Strength  float64 `json:"strength"`
}

// Stats summarizes the size of the graph.
type Stats struct {
	Messages     int64 `json:"messages"`
	Concepts     int64 `json:"concepts"`
	Memories     int64 `json:"memories"`
	Tags         int64 `json:"tags"`
	Associations int64 `json:"associations"`
}

// Driver is the abstract graph store the engine runs against.
//
// Implementations must make RecordMention atomic: two concurrent mentions of
// the same concept may never lose a count or an activation update. Every
// other method is an independent read or a single-row write.
type Driver interface {
	// PutMessage persists a new message node and its OWNS edge.
	PutMessage(ctx context.Context, msg *brain.ChatMessage) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*brain.ChatMessage, error)

	// UpdateMessage rewrites an existing message node.
	UpdateMessage(ctx context.Context, msg *brain.ChatMessage) error

	// MessagesByUser returns the user's messages with timestamps in
	// [from, to], newest first.
	MessagesByUser(ctx context.Context, userID string, from, to time.Time) ([]brain.ChatMessage, error)

	// RecentlyModified returns the user's messages whose last_modified is
	// at or after since.
	RecentlyModified(ctx context.Context, userID string, since time.Time) ([]brain.ChatMessage, error)

	// MessagesAwaitingConsolidation returns messages older than the cutoff
	// that have no episodic HAS_MEMORY edge yet, oldest first, capped at
	// limit.
	MessagesAwaitingConsolidation(ctx context.Context, olderThan time.Time, limit int) ([]brain.ChatMessage, error)

	// RecordMention atomically creates or strengthens a concept and its
	// MENTIONS edge from the message. A new concept seeds activation from
	// the confidence; an existing one recombines activation and refreshes
	// last_mentioned. The mention count is incremented only when the edge
	// is newly created, keeping it equal to the number of MENTIONS edges.
	RecordMention(ctx context.Context, userID, conceptName, messageID string, confidence float64, at time.Time) (*brain.Concept, error)

	// ConceptsByUser returns all of the user's concepts.
	ConceptsByUser(ctx context.Context, userID string) ([]brain.Concept, error)

	// ConceptsByIDs returns the concepts with the given IDs; missing IDs
	// are skipped.
	ConceptsByIDs(ctx context.Context, ids []string) ([]brain.Concept, error)

	// MentionedConcepts returns every (concept, message) mention pair for
	// the given messages.
	MentionedConcepts(ctx context.Context, messageIDs []string) ([]MentionedConcept, error)

	// DecayConcepts multiplies the activation of the user's concepts by
	// factor, floored at zero, skipping the given concept IDs. Returns the
	// number of concepts decayed.
	DecayConcepts(ctx context.Context, userID string, exceptIDs []string, factor float64) (int, error)

	// UpsertAssociation creates or updates a RELATED_TO edge. Endpoints
	// are normalized so the symmetric pair is stored once; self-loops are
	// rejected.
	UpsertAssociation(ctx context.Context, assoc brain.Association) error

	// Associations returns RELATED_TO edges touching any of the given
	// concepts.
	Associations(ctx context.Context, conceptIDs []string) ([]brain.Association, error)

	// PutMemory persists a new memory node.
	PutMemory(ctx context.Context, mem *brain.Memory) error

	// GetMemory retrieves a memory by ID.
	GetMemory(ctx context.Context, id string) (*brain.Memory, error)

	// UpdateMemory rewrites an existing memory node without touching its
	// lifecycle status.
	UpdateMemory(ctx context.Context, mem *brain.Memory) error

	// TransitionMemory advances a memory's lifecycle status. Advancing to
	// the current status is a no-op; anything other than the single next
	// step fails with ErrInvalidTransition.
	TransitionMemory(ctx context.Context, id string, to brain.ConsolidationStatus, at time.Time) error

	// EpisodicMemories returns the user's episodic memories in
	// consolidating or consolidated state whose timestamp is at or after
	// since.
	EpisodicMemories(ctx context.Context, userID string, since time.Time) ([]brain.Memory, error)

	// MemoriesConsolidatedBefore returns consolidated memories whose
	// consolidation date is before the cutoff, for archival.
	MemoriesConsolidatedBefore(ctx context.Context, cutoff time.Time) ([]brain.Memory, error)

	// MemoryByOrigin returns the episodic memory minted from the given
	// message, regardless of lifecycle status, or ErrNotFound when the
	// message has never been consolidated.
	MemoryByOrigin(ctx context.Context, originMessageID string) (*brain.Memory, error)

	// LinkHasMemory creates or updates the HAS_MEMORY edge for the
	// message/memory-type pair. At most one such edge exists per pair.
	LinkHasMemory(ctx context.Context, edge brain.HasMemory) error

	// ConsolidationStrengths returns, per memory ID, the consolidation
	// strengths of its HAS_MEMORY edges.
	ConsolidationStrengths(ctx context.Context, memoryIDs []string) (map[string][]float64, error)

	// UpsertTag creates a tag on first use and increments its usage count
	// thereafter.
	UpsertTag(ctx context.Context, userID, name string, category brain.TagCategory, origin brain.Channel, at time.Time) (*brain.Tag, error)

	// Stats returns graph size counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}
