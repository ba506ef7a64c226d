// Package consolidation moves messages through the memory lifecycle:
// fresh → consolidating → consolidated → archived. Each run promotes aged
// messages into episodic memories, recomputes concept associations from
// co-occurrence, decays unmentioned concepts, and archives memories past
// the retention horizon.
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/cache"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
	"github.com/omnii-ai/brainmem/pkg/graph"
)

// Config tunes a Consolidator. Zero values fall back to defaults.
type Config struct {
	// FreshAge is how old a message must be before it is consolidated.
	FreshAge time.Duration

	// RetentionHorizon is how long a consolidated memory stays out of the
	// archive.
	RetentionHorizon time.Duration

	// DecayFactor multiplies the activation of concepts not mentioned
	// during a run.
	DecayFactor float64

	// BatchLimit caps how many messages one run picks up.
	BatchLimit int

	NumWorkers uint
	QueueSize  uint
}

const (
	defaultFreshAge         = 24 * time.Hour
	defaultRetentionHorizon = 720 * time.Hour
	defaultDecayFactor      = 0.95
	defaultBatchLimit       = 100
)

func (c *Config) applyDefaults() {
	if c.FreshAge <= 0 {
		c.FreshAge = defaultFreshAge
	}
	if c.RetentionHorizon <= 0 {
		c.RetentionHorizon = defaultRetentionHorizon
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		c.DecayFactor = defaultDecayFactor
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = defaultBatchLimit
	}
}

// Report summarizes one consolidation run.
type Report struct {
	Consolidated int `json:"consolidated"`
	Failed       int `json:"failed"`
	Archived     int `json:"archived"`
	Associations int `json:"associations"`
	Decayed      int `json:"decayed_concepts"`
	Users        int `json:"users_touched"`
}

// runState collects per-run results across the worker pool.
type runState struct {
	wg sync.WaitGroup

	mu       sync.Mutex
	byUser   map[string][]string // userID -> consolidated message IDs
	failures int
}

func newRunState() *runState {
	return &runState{byUser: make(map[string][]string)}
}

func (r *runState) recordConsolidated(userID, messageID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = append(r.byUser[userID], messageID)
}

func (r *runState) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

// Consolidator runs the consolidation process.
type Consolidator struct {
	graph      graph.Driver
	cache      cache.Adapter
	events     eventstream.Publisher
	summarizer Summarizer
	logger     *zap.Logger
	config     Config
	pool       *pool

	now func() time.Time
}

// New creates a Consolidator and starts its worker pool. Close drains it.
func New(g graph.Driver, c cache.Adapter, events eventstream.Publisher, summarizer Summarizer, logger *zap.Logger, cfg Config) *Consolidator {
	cfg.applyDefaults()

	if summarizer == nil {
		summarizer = StubSummarizer{}
	}

	consolidator := &Consolidator{
		graph:      g,
		cache:      c,
		events:     events,
		summarizer: summarizer,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
	}
	consolidator.pool = newPool(consolidator, cfg.NumWorkers, cfg.QueueSize)

	return consolidator
}

// SetNow overrides the clock, for tests.
func (c *Consolidator) SetNow(now func() time.Time) {
	c.now = now
}

// Close drains the worker pool.
func (c *Consolidator) Close() {
	c.pool.close()
}

// RunOnce executes one full consolidation pass: promote aged messages,
// recompute associations, decay unmentioned concepts, archive old memories.
func (c *Consolidator) RunOnce(ctx context.Context) (*Report, error) {
	now := c.now()

	batch, err := c.graph.MessagesAwaitingConsolidation(ctx, now.Add(-c.config.FreshAge), c.config.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load consolidation batch: %w", err)
	}

	run := newRunState()
	for _, msg := range batch {
		run.wg.Add(1)
		if !c.pool.enqueue(job{ctx: ctx, message: msg, run: run}) {
			run.wg.Done()
		}
	}
	run.wg.Wait()

	report := &Report{Failed: run.failures}
	for userID, messageIDs := range run.byUser {
		report.Consolidated += len(messageIDs)
		report.Users++

		assocs, decayed := c.housekeepUser(ctx, userID, messageIDs)
		report.Associations += assocs
		report.Decayed += decayed
	}

	archived, err := c.archive(ctx, now)
	if err != nil {
		c.logger.Error("archival pass failed", zap.Error(err))
	}
	report.Archived = archived

	c.logger.Info("consolidation run complete",
		zap.Int("consolidated", report.Consolidated),
		zap.Int("failed", report.Failed),
		zap.Int("archived", report.Archived),
		zap.Int("users", report.Users),
	)

	return report, nil
}

// consolidateMessage promotes one message into an episodic memory. The
// memory walks every lifecycle step in order; a failure part-way leaves it
// in a valid intermediate state, and the next run picks it back up where it
// stopped instead of minting a second memory for the same message.
func (c *Consolidator) consolidateMessage(ctx context.Context, msg brain.ChatMessage) (*brain.Memory, error) {
	now := c.now()

	mem, err := c.graph.MemoryByOrigin(ctx, msg.ID)
	if err != nil {
		var notFound graph.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to look up memory for message: %w", err)
		}

		mem = &brain.Memory{
			ID:               uuid.NewString(),
			UserID:           msg.UserID,
			Timestamp:        msg.Timestamp,
			Type:             brain.MemoryEpisodic,
			Status:           brain.StatusFresh,
			EpisodeType:      episodeTypeFor(msg),
			Channel:          msg.Channel,
			SourceIdentifier: msg.SourceIdentifier,
			OriginMessageID:  msg.ID,
			ImportanceScore:  msg.ImportanceScore,
		}
		if err := c.graph.PutMemory(ctx, mem); err != nil {
			return nil, fmt.Errorf("failed to create memory: %w", err)
		}
	}

	switch mem.Status {
	case brain.StatusConsolidated, brain.StatusArchived:
		// Consolidation finished earlier; only the edge was lost.
		return mem, c.linkMemory(ctx, msg, mem)
	case brain.StatusFresh:
		if err := c.graph.TransitionMemory(ctx, mem.ID, brain.StatusConsolidating, now); err != nil {
			return nil, fmt.Errorf("failed to start consolidating: %w", err)
		}
	}

	summary, err := c.summarizer.Summarize(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize message: %w", err)
	}
	mem.Summary = summary

	if err := c.graph.UpdateMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("failed to store summary: %w", err)
	}

	if err := c.linkMemory(ctx, msg, mem); err != nil {
		return nil, err
	}

	if err := c.graph.TransitionMemory(ctx, mem.ID, brain.StatusConsolidated, now); err != nil {
		return nil, fmt.Errorf("failed to finish consolidating: %w", err)
	}
	mem.Status = brain.StatusConsolidated
	consolidatedAt := now
	mem.ConsolidationDate = &consolidatedAt

	c.publish(ctx, mem)

	return mem, nil
}

func (c *Consolidator) linkMemory(ctx context.Context, msg brain.ChatMessage, mem *brain.Memory) error {
	edge := brain.HasMemory{
		MessageID:             msg.ID,
		MemoryID:              mem.ID,
		Type:                  brain.MemoryEpisodic,
		ConsolidationStrength: msg.ImportanceScore,
	}
	if err := c.graph.LinkHasMemory(ctx, edge); err != nil {
		return fmt.Errorf("failed to link memory: %w", err)
	}

	return nil
}

func episodeTypeFor(msg brain.ChatMessage) brain.EpisodeType {
	if msg.ActionContext != nil {
		return brain.EpisodeServiceInteraction
	}

	return brain.EpisodeConversation
}

// housekeepUser recomputes associations from concept co-occurrence in the
// user's freshly consolidated messages, decays every other concept, and
// flushes the user's cache. Returns association and decay counts.
func (c *Consolidator) housekeepUser(ctx context.Context, userID string, messageIDs []string) (int, int) {
	mentions, err := c.graph.MentionedConcepts(ctx, messageIDs)
	if err != nil {
		c.logger.Error("failed to load mentions for housekeeping",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, 0
	}

	conceptsByMessage := make(map[string][]string)
	mentionedIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, mention := range mentions {
		conceptsByMessage[mention.MessageID] = append(conceptsByMessage[mention.MessageID], mention.Concept.ID)
		if !seen[mention.Concept.ID] {
			seen[mention.Concept.ID] = true
			mentionedIDs = append(mentionedIDs, mention.Concept.ID)
		}
	}

	assocs := c.recomputeAssociations(ctx, userID, conceptsByMessage)

	decayed, err := c.graph.DecayConcepts(ctx, userID, mentionedIDs, c.config.DecayFactor)
	if err != nil {
		c.logger.Error("failed to decay concepts",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if err := c.cache.FlushUser(ctx, userID); err != nil {
		c.logger.Warn("failed to flush user cache after consolidation",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	return assocs, decayed
}

// recomputeAssociations upserts RELATED_TO edges for concept pairs that
// co-occur in the consolidated message set, with strength normalized by the
// most frequent pair.
func (c *Consolidator) recomputeAssociations(ctx context.Context, userID string, conceptsByMessage map[string][]string) int {
	type pair struct{ a, b string }

	counts := make(map[pair]int)
	for _, conceptIDs := range conceptsByMessage {
		sorted := append([]string(nil), conceptIDs...)
		sort.Strings(sorted)

		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				if sorted[i] == sorted[j] {
					continue
				}
				counts[pair{a: sorted[i], b: sorted[j]}]++
			}
		}
	}

	if len(counts) == 0 {
		return 0
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	written := 0
	for p, n := range counts {
		assoc := brain.Association{
			FromConceptID:    p.a,
			ToConceptID:      p.b,
			Strength:         float64(n) / float64(max),
			RelationshipType: "co_occurrence",
		}

		if err := c.graph.UpsertAssociation(ctx, assoc); err != nil {
			c.logger.Warn("failed to upsert association",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		written++
	}

	return written
}

// archive moves memories past the retention horizon to archived and flushes
// the affected users' caches.
func (c *Consolidator) archive(ctx context.Context, now time.Time) (int, error) {
	aged, err := c.graph.MemoriesConsolidatedBefore(ctx, now.Add(-c.config.RetentionHorizon))
	if err != nil {
		return 0, fmt.Errorf("failed to load memories for archival: %w", err)
	}

	archived := 0
	users := make(map[string]bool)
	for _, mem := range aged {
		if err := c.graph.TransitionMemory(ctx, mem.ID, brain.StatusArchived, now); err != nil {
			c.logger.Error("failed to archive memory",
				zap.String("memory_id", mem.ID),
				zap.Error(err),
			)
			continue
		}
		archived++
		users[mem.UserID] = true
	}

	for userID := range users {
		if err := c.cache.FlushUser(ctx, userID); err != nil {
			c.logger.Warn("failed to flush user cache after archival",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return archived, nil
}

func (c *Consolidator) publish(ctx context.Context, mem *brain.Memory) {
	event := &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeMemoryConsolidated,
		EventID:       uuid.NewString(),
		EmittedAt:     c.now(),
		UserID:        mem.UserID,
		Memory:        mem,
	}

	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish consolidation event",
			zap.String("memory_id", mem.ID),
			zap.Error(err),
		)
	}
}
