package brain

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError describes malformed input rejected at the boundary.
// It is the only error class that fails an ingestion or retrieval call
// outright; dependency failures degrade instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IngestInput is a channel-specific message as handed to the ingestion
// service, before normalization.
type IngestInput struct {
	UserID           string          `json:"user_id"`
	Content          string          `json:"content"`
	Channel          Channel         `json:"channel"`
	SourceIdentifier string          `json:"source_identifier"`
	Timestamp        time.Time       `json:"timestamp,omitempty"`
	Metadata         ChannelMetadata `json:"channel_metadata,omitempty"`
}

// Validate checks the ingest input against the channel contract: non-empty
// content, a known channel, and a channel-appropriate source identifier.
func (in *IngestInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}

	if strings.TrimSpace(in.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	if !in.Channel.Valid() {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", in.Channel)}
	}

	if strings.TrimSpace(in.SourceIdentifier) == "" {
		return &ValidationError{Field: "source_identifier", Reason: "required"}
	}

	// The metadata union must not carry a payload for a different channel.
	switch in.Channel {
	case ChannelSMS:
		if in.Metadata.Chat != nil || in.Metadata.Websocket != nil {
			return &ValidationError{Field: "channel_metadata", Reason: "non-sms payload on sms message"}
		}
	case ChannelChat:
		if in.Metadata.SMS != nil || in.Metadata.Websocket != nil {
			return &ValidationError{Field: "channel_metadata", Reason: "non-chat payload on chat message"}
		}
	case ChannelWebsocket:
		if in.Metadata.SMS != nil || in.Metadata.Chat != nil {
			return &ValidationError{Field: "channel_metadata", Reason: "non-websocket payload on websocket message"}
		}
	}

	return nil
}
