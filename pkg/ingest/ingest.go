// Package ingest normalizes channel-specific messages into persisted graph
// state: the message node itself, its concept links, and the bookkeeping
// around them (tags, cache invalidation, events).
//
// Ingestion degrades instead of failing: extractor outages produce a message
// without intent or concepts, and cache or event-stream outages are logged
// and ignored. Only malformed input rejects a call.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/cache"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
	"github.com/omnii-ai/brainmem/pkg/extractor"
	"github.com/omnii-ai/brainmem/pkg/extractor/heuristic"
	"github.com/omnii-ai/brainmem/pkg/graph"
	"github.com/omnii-ai/brainmem/pkg/utils"
)

// UnconfirmedError reports that the caller's deadline expired before the
// write confirmed. The write itself completes best-effort in the background
// and is not rolled back.
type UnconfirmedError struct {
	Op string
}

func (e *UnconfirmedError) Error() string {
	return e.Op + " did not confirm before deadline; write continues in background"
}

// Service is the ingestion service.
type Service struct {
	graph    graph.Driver
	analyzer extractor.Analyzer
	cache    cache.Adapter
	events   eventstream.Publisher
	logger   *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates an ingestion service. The analyzer may be nil, in which
// case every message takes the degraded path.
func NewService(g graph.Driver, analyzer extractor.Analyzer, c cache.Adapter, events eventstream.Publisher, logger *zap.Logger) *Service {
	return &Service{
		graph:    g,
		analyzer: analyzer,
		cache:    c,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Ingest validates and persists a channel message. If the caller's context
// expires mid-write, the write continues in the background and the caller
// receives an UnconfirmedError.
func (s *Service) Ingest(ctx context.Context, in brain.IngestInput) (*brain.ChatMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	type result struct {
		msg *brain.ChatMessage
		err error
	}

	done := make(chan result, 1)
	go func() {
		msg, err := s.ingest(context.WithoutCancel(ctx), in)
		done <- result{msg: msg, err: err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, &UnconfirmedError{Op: "ingest"}
	}
}

func (s *Service) ingest(ctx context.Context, in brain.IngestInput) (*brain.ChatMessage, error) {
	now := s.now()

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	analysis := s.analyze(ctx, in.Content)

	msg := &brain.ChatMessage{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		Content:            in.Content,
		Timestamp:          ts,
		Channel:            in.Channel,
		SourceIdentifier:   in.SourceIdentifier,
		Intent:             analysis.Intent,
		Sentiment:          analysis.Sentiment,
		ImportanceScore:    brain.ClampUnit(analysis.ImportanceHint),
		LastModified:       now,
		ModificationReason: brain.ModificationCreated,
		Metadata:           in.Metadata,
	}

	if err := s.graph.PutMessage(ctx, msg); err != nil {
		// Store outage degrades: the caller still gets the composed
		// message, it just isn't durable yet.
		s.logger.Error("failed to persist message, returning unpersisted",
			zap.String("user_id", in.UserID),
			zap.Error(err),
		)
		return msg, nil
	}

	s.logger.Debug("message persisted",
		zap.String("message_id", msg.ID),
		zap.String("user_id", msg.UserID),
		zap.String("channel", string(msg.Channel)),
		zap.String("preview", utils.Truncate(msg.Content, 48)),
	)

	s.linkConcepts(ctx, msg, analysis.Concepts)
	s.recordTags(ctx, msg)
	s.flushAndPublish(ctx, msg)

	return msg, nil
}

// EditMessage updates a message's content and re-runs concept linking.
// Already-linked concepts get their mention strength updated in place rather
// than gaining duplicate edges.
func (s *Service) EditMessage(ctx context.Context, messageID, content string) (*brain.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &brain.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	msg, err := s.graph.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message for edit: %w", err)
	}

	analysis := s.analyze(ctx, content)

	msg.Content = content
	msg.LastModified = s.now()
	msg.ModificationReason = brain.ModificationEdited
	msg.Intent = analysis.Intent
	msg.Sentiment = analysis.Sentiment
	msg.ImportanceScore = brain.ClampUnit(analysis.ImportanceHint)

	if err := s.graph.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	s.linkConcepts(ctx, msg, analysis.Concepts)
	s.flushAndPublish(ctx, msg)

	return msg, nil
}

// RecordAction persists an external tool invocation as a message so the
// action itself becomes part of future memory. Failed attempts are recorded
// the same way as successes.
func (s *Service) RecordAction(ctx context.Context, userID string, channel brain.Channel, sourceID, content string, action brain.ExternalActionContext) (*brain.ChatMessage, error) {
	now := s.now()
	analysis := s.analyze(ctx, content)

	msg := &brain.ChatMessage{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Content:            content,
		Timestamp:          now,
		Channel:            channel,
		SourceIdentifier:   sourceID,
		Intent:             action.Operation,
		Sentiment:          analysis.Sentiment,
		ImportanceScore:    brain.ClampUnit(analysis.ImportanceHint),
		LastModified:       now,
		ModificationReason: brain.ModificationCreated,
		ActionContext:      &action,
	}

	if err := s.graph.PutMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist action record: %w", err)
	}

	s.linkConcepts(ctx, msg, analysis.Concepts)

	if _, err := s.graph.UpsertTag(ctx, userID, action.ServiceType, brain.TagExternalService, channel, now); err != nil {
		s.logger.Warn("failed to upsert service tag",
			zap.String("service", action.ServiceType),
			zap.Error(err),
		)
	}

	s.flushAndPublish(ctx, msg)

	return msg, nil
}

// analyze runs the extractor and falls back to the content-length heuristic
// when it is missing or fails. Degraded analysis carries no intent, neutral
// sentiment, and no concepts.
func (s *Service) analyze(ctx context.Context, content string) *extractor.Analysis {
	if s.analyzer != nil {
		analysis, err := s.analyzer.Analyze(ctx, content)
		if err == nil {
			return analysis
		}

		s.logger.Warn("extractor unavailable, degrading ingestion",
			zap.Error(err),
		)
	}

	return &extractor.Analysis{
		ImportanceHint: heuristic.ImportanceFromLength(content),
	}
}

func (s *Service) linkConcepts(ctx context.Context, msg *brain.ChatMessage, candidates []extractor.ConceptCandidate) {
	for _, candidate := range candidates {
		if candidate.Name == "" || candidate.Confidence <= 0 {
			continue
		}

		_, err := s.graph.RecordMention(ctx, msg.UserID, candidate.Name, msg.ID, candidate.Confidence, s.now())
		if err != nil {
			// Consistency problems skip the one link, not the message.
			s.logger.Warn("failed to link concept, skipping",
				zap.String("concept", candidate.Name),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) recordTags(ctx context.Context, msg *brain.ChatMessage) {
	if msg.Intent == "" {
		return
	}

	if _, err := s.graph.UpsertTag(ctx, msg.UserID, msg.Intent, brain.TagAction, msg.Channel, s.now()); err != nil {
		s.logger.Warn("failed to upsert intent tag",
			zap.String("intent", msg.Intent),
			zap.Error(err),
		)
	}
}

func (s *Service) flushAndPublish(ctx context.Context, msg *brain.ChatMessage) {
	if err := s.cache.FlushUser(ctx, msg.UserID); err != nil {
		s.logger.Warn("failed to flush user cache",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}

	event := &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeMessageIngested,
		EventID:       uuid.NewString(),
		EmittedAt:     s.now(),
		UserID:        msg.UserID,
		Message:       msg,
	}

	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish ingestion event",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}
}
