package brain

import (
	"slices"
	"time"
)

// TimeBucket places a message within the rolling three-week working window.
type TimeBucket string

const (
	BucketPreviousWeek TimeBucket = "previous_week"
	BucketCurrentWeek  TimeBucket = "current_week"
	BucketNextWeek     TimeBucket = "next_week"
)

// ScoredMessage is a working-memory message annotated with its time bucket
// and composite retrieval score.
type ScoredMessage struct {
	ChatMessage

	Bucket           TimeBucket `json:"time_bucket"`
	RecentlyModified bool       `json:"recently_modified"`
	CompositeScore   float64    `json:"composite_score"`
}

// TimeWindowStats counts working-window messages per bucket.
type TimeWindowStats struct {
	PreviousWeek int `json:"previous_week_count"`
	CurrentWeek  int `json:"current_week_count"`
	NextWeek     int `json:"next_week_count"`
}

// WorkingMemory is the most recent, highest-importance slice of a user's
// messages, bounded to a small fixed count.
type WorkingMemory struct {
	Messages         []ScoredMessage `json:"messages"`
	TimeWindowStats  TimeWindowStats `json:"time_window_stats"`
	RecentlyModified []ChatMessage   `json:"recently_modified_messages,omitempty"`
}

// EpisodicThread groups episodic memories that share a channel and source
// identifier, i.e. one conversation thread.
type EpisodicThread struct {
	Channel          Channel  `json:"channel"`
	SourceIdentifier string   `json:"source_identifier"`
	Memories         []Memory `json:"memories"`
	SemanticWeight   float64  `json:"semantic_weight"`
}

// EpisodicMemory is the consolidated-thread tier of the context.
type EpisodicMemory struct {
	Threads []EpisodicThread `json:"threads"`
}

// SemanticMemory is the concept-graph tier of the context: concepts activated
// by the working and episodic tiers plus their one-hop associations.
type SemanticMemory struct {
	ActiveConcepts     []Concept     `json:"active_concepts"`
	AssociatedConcepts []Concept     `json:"associated_concepts,omitempty"`
	Associations       []Association `json:"associations,omitempty"`
}

// SMSHints carries response-shaping hints for SMS replies.
type SMSHints struct {
	CharacterBudget int  `json:"character_budget"`
	SuggestBrief    bool `json:"suggest_brief"`
}

// ChatHints carries response-shaping hints for chat replies.
type ChatHints struct {
	MaxLength   int  `json:"max_length"`
	RichContent bool `json:"rich_content"`
	ThreadAware bool `json:"thread_aware"`
}

// BrainMemoryContext is the three-tier memory context handed to callers.
// It is always structurally valid: when the graph store is unreachable the
// tiers are empty and MemoryStrength is zero, but the shape holds.
type BrainMemoryContext struct {
	UserID  string  `json:"user_id"`
	Channel Channel `json:"channel"`

	Working  WorkingMemory  `json:"working_memory"`
	Episodic EpisodicMemory `json:"episodic_memory"`
	Semantic SemanticMemory `json:"semantic_memory"`

	MemoryStrength     float64 `json:"memory_strength"`
	ConsolidationScore float64 `json:"consolidation_score"`

	ContextChannels []Channel `json:"context_channels,omitempty"`
	CrossChannel    bool      `json:"cross_channel"`

	SMSHints  *SMSHints  `json:"sms_hints,omitempty"`
	ChatHints *ChatHints `json:"chat_hints,omitempty"`

	// RetrievalTimestamp is set at response time and is deliberately
	// excluded from cached payload equality.
	RetrievalTimestamp time.Time `json:"retrieval_timestamp"`
}

// Clone returns a copy whose tier slices and hint pointers are independent
// of the receiver, so concurrent holders never share mutable state.
func (mc *BrainMemoryContext) Clone() *BrainMemoryContext {
	cp := *mc

	cp.Working.Messages = slices.Clone(mc.Working.Messages)
	cp.Working.RecentlyModified = slices.Clone(mc.Working.RecentlyModified)

	cp.Episodic.Threads = slices.Clone(mc.Episodic.Threads)
	for i := range cp.Episodic.Threads {
		cp.Episodic.Threads[i].Memories = slices.Clone(cp.Episodic.Threads[i].Memories)
	}

	cp.Semantic.ActiveConcepts = slices.Clone(mc.Semantic.ActiveConcepts)
	cp.Semantic.AssociatedConcepts = slices.Clone(mc.Semantic.AssociatedConcepts)
	cp.Semantic.Associations = slices.Clone(mc.Semantic.Associations)

	cp.ContextChannels = slices.Clone(mc.ContextChannels)

	if mc.SMSHints != nil {
		hints := *mc.SMSHints
		cp.SMSHints = &hints
	}
	if mc.ChatHints != nil {
		hints := *mc.ChatHints
		cp.ChatHints = &hints
	}

	return &cp
}

// MinimalContext returns the degraded context used when the graph store is
// unreachable: empty tiers, zero strength, still structurally valid.
func MinimalContext(userID string, channel Channel, now time.Time) *BrainMemoryContext {
	return &BrainMemoryContext{
		UserID:             userID,
		Channel:            channel,
		Working:            WorkingMemory{Messages: []ScoredMessage{}},
		Episodic:           EpisodicMemory{Threads: []EpisodicThread{}},
		Semantic:           SemanticMemory{ActiveConcepts: []Concept{}},
		RetrievalTimestamp: now,
	}
}
