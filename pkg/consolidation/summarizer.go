package consolidation

import (
	"context"
	"strings"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

// Summarizer produces the consolidation summary for a message. The engine
// treats it as a collaborator so an external model can be plugged in later.
type Summarizer interface {
	Summarize(ctx context.Context, msg brain.ChatMessage) (string, error)
}

const stubSummaryLimit = 240

// StubSummarizer builds a summary from the message itself: intent prefix
// plus truncated content. It never fails.
type StubSummarizer struct{}

func (StubSummarizer) Summarize(_ context.Context, msg brain.ChatMessage) (string, error) {
	var b strings.Builder

	if msg.Intent != "" {
		b.WriteString(msg.Intent)
		b.WriteString(": ")
	}

	content := []rune(strings.TrimSpace(msg.Content))
	if len(content) > stubSummaryLimit {
		b.WriteString(string(content[:stubSummaryLimit]))
		b.WriteString("…")
	} else {
		b.WriteString(string(content))
	}

	return b.String(), nil
}
