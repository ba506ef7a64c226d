// Package brain defines the core domain model for the brainmem engine:
// chat messages, concepts, consolidated memories, tags, and the relationships
// between them. All other packages build on these types.
//
// The enums here are closed sets. Anything arriving from the outside world
// (transport payloads, tool calls) is checked against them at the boundary
// via the validation helpers in validate.go before it touches the graph.
package brain

import "time"

// Channel identifies the conversational channel a message arrived on.
type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelChat      Channel = "chat"
	ChannelWebsocket Channel = "websocket"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelChat, ChannelWebsocket:
		return true
	}
	return false
}

// ModificationReason records why a message's content last changed.
type ModificationReason string

const (
	ModificationCreated      ModificationReason = "created"
	ModificationEdited       ModificationReason = "edited"
	ModificationReclassified ModificationReason = "reclassified"
)

// MemoryType classifies a consolidated memory record.
type MemoryType string

const (
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryProcedural MemoryType = "procedural"
	MemoryWorking    MemoryType = "working"
)

// Valid reports whether t is one of the known memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryEpisodic, MemorySemantic, MemoryProcedural, MemoryWorking:
		return true
	}
	return false
}

// EpisodeType classifies what kind of episode a memory captures.
type EpisodeType string

const (
	EpisodeConversation       EpisodeType = "conversation"
	EpisodeAction             EpisodeType = "action"
	EpisodeServiceInteraction EpisodeType = "service_interaction"
)

// TagCategory classifies a lightweight categorical label.
type TagCategory string

const (
	TagEntity          TagCategory = "entity"
	TagTopic           TagCategory = "topic"
	TagAction          TagCategory = "action"
	TagEmotion         TagCategory = "emotion"
	TagTemporal        TagCategory = "temporal"
	TagLocation        TagCategory = "location"
	TagExternalService TagCategory = "external_service"
)

// SMSMetadata is the channel metadata carried by SMS messages.
type SMSMetadata struct {
	PhoneNumber string    `json:"phone_number"`
	Incoming    bool      `json:"incoming"`
	LocalTime   time.Time `json:"local_time"`
}

// ChatMetadata is the channel metadata carried by chat messages.
type ChatMetadata struct {
	ChatID       string   `json:"chat_id"`
	Group        bool     `json:"group"`
	Participants []string `json:"participants,omitempty"`
}

// WebsocketMetadata is the channel metadata carried by websocket messages.
type WebsocketMetadata struct {
	SessionID string `json:"session_id"`
}

// ChannelMetadata is a closed union of per-channel payload shapes.
// Exactly one field is non-nil, matching the message's Channel.
type ChannelMetadata struct {
	SMS       *SMSMetadata       `json:"sms,omitempty"`
	Chat      *ChatMetadata      `json:"chat,omitempty"`
	Websocket *WebsocketMetadata `json:"websocket,omitempty"`
}

// ExternalActionContext records an external tool invocation that a message
// represents. Present only on messages written by the tool enhancer.
type ExternalActionContext struct {
	ServiceType string `json:"service_type"`
	Operation   string `json:"operation"`
	Success     bool   `json:"success"`
}

// ChatMessage is one conversational turn owned by a user. Messages are never
// physically deleted; they age out of retrieval windows and are archived
// through consolidation.
type ChatMessage struct {
	ID                 string                 `json:"id"`
	UserID             string                 `json:"user_id"`
	Content            string                 `json:"content"`
	Timestamp          time.Time              `json:"timestamp"`
	Channel            Channel                `json:"channel"`
	SourceIdentifier   string                 `json:"source_identifier"`
	Intent             string                 `json:"intent,omitempty"`
	Sentiment          float64                `json:"sentiment"`
	ImportanceScore    float64                `json:"importance_score"`
	LastModified       time.Time              `json:"last_modified"`
	ModificationReason ModificationReason     `json:"modification_reason"`
	Metadata           ChannelMetadata        `json:"channel_metadata"`
	ActionContext      *ExternalActionContext `json:"external_action_context,omitempty"`
}

// Concept is a named semantic unit extracted from messages. Activation decays
// over time and rises on mention; concepts are never deleted, only decayed.
type Concept struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	ActivationStrength float64   `json:"activation_strength"`
	MentionCount       int       `json:"mention_count"`
	LastMentioned      time.Time `json:"last_mentioned"`
	SemanticWeight     float64   `json:"semantic_weight"`
}

// Memory is a consolidated representation of one or more messages.
// Its Timestamp mirrors the originating message's timestamp so retrieval
// windows apply uniformly.
type Memory struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	Timestamp         time.Time           `json:"timestamp"`
	Type              MemoryType          `json:"memory_type"`
	Status            ConsolidationStatus `json:"consolidation_status"`
	ConsolidationDate *time.Time          `json:"consolidation_date,omitempty"`
	EpisodeType       EpisodeType         `json:"episode_type"`
	Channel           Channel             `json:"channel"`
	SourceIdentifier  string              `json:"source_identifier"`
	OriginMessageID   string              `json:"originating_message_id"`
	Summary           string              `json:"consolidation_summary,omitempty"`
	ImportanceScore   float64             `json:"importance_score"`
}

// Tag is a lightweight categorical label, distinct from Concept.
type Tag struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Name          string      `json:"name"`
	UsageCount    int         `json:"usage_count"`
	LastUsed      time.Time   `json:"last_used"`
	ChannelOrigin Channel     `json:"channel_origin"`
	Category      TagCategory `json:"category"`
}

// Mention is a MENTIONS edge from a message to a concept.
type Mention struct {
	MessageID string  `json:"message_id"`
	ConceptID string  `json:"concept_id"`
	Strength  float64 `json:"strength"`
}

// HasMemory is a HAS_MEMORY edge from a message to a memory. A message has
// at most one such edge per memory type.
type HasMemory struct {
	MessageID             string     `json:"message_id"`
	MemoryID              string     `json:"memory_id"`
	Type                  MemoryType `json:"memory_type"`
	ConsolidationStrength float64    `json:"consolidation_strength"`
}

// Association is a RELATED_TO edge between two concepts. Associations are
// symmetric by convention; self-loops are forbidden.
type Association struct {
	FromConceptID    string  `json:"from_concept_id"`
	ToConceptID      string  `json:"to_concept_id"`
	Strength         float64 `json:"association_strength"`
	RelationshipType string  `json:"relationship_type"`
}
