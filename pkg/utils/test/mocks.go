// Package testutils provides shared mocks for package tests.
package testutils

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/extractor"
)

// NewTestMessage creates a persisted-shape message for tests.
func NewTestMessage(userID, content string, channel brain.Channel, ts time.Time) *brain.ChatMessage {
	return &brain.ChatMessage{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Content:            content,
		Timestamp:          ts,
		Channel:            channel,
		SourceIdentifier:   "test-source",
		ImportanceScore:    0.5,
		LastModified:       ts,
		ModificationReason: brain.ModificationCreated,
	}
}

// StaticAnalyzer returns the same analysis for every input.
type StaticAnalyzer struct {
	Result extractor.Analysis
}

func (a *StaticAnalyzer) Analyze(_ context.Context, _ string) (*extractor.Analysis, error) {
	result := a.Result
	return &result, nil
}

// FailingAnalyzer always errors, for degraded-path tests.
type FailingAnalyzer struct{}

func (FailingAnalyzer) Analyze(_ context.Context, _ string) (*extractor.Analysis, error) {
	return nil, errors.New("analyzer unavailable")
}

// FailingCache errors on every operation, for cache-outage tests.
type FailingCache struct{}

func (FailingCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("cache unavailable")
}

func (FailingCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return errors.New("cache unavailable")
}

func (FailingCache) Delete(_ context.Context, _ string) error {
	return errors.New("cache unavailable")
}

func (FailingCache) FlushUser(_ context.Context, _ string) error {
	return errors.New("cache unavailable")
}

func (FailingCache) Close() error { return nil }
