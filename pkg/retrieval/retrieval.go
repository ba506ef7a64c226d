// Package retrieval assembles the three-tier memory context for a user:
// recent working memory, consolidated episodic threads, and the activated
// slice of the semantic concept graph. Results are served through a
// read-through cache with single-flight collapsing of concurrent identical
// queries.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/cache"
	"github.com/omnii-ai/brainmem/pkg/graph"
)

// DefaultWorkingMemorySize bounds the working tier when no override is given.
const DefaultWorkingMemorySize = 7

const opGetContext = "get_context"

// Options overrides per-query retrieval parameters. Zero values fall back
// to engine defaults.
type Options struct {
	WorkingMemorySize int
	CacheTTL          time.Duration
}

// Query names one context retrieval.
type Query struct {
	UserID           string        `json:"user_id"`
	QueryText        string        `json:"query_text"`
	Channel          brain.Channel `json:"channel"`
	SourceIdentifier string        `json:"source_identifier"`
	WorkingSize      int           `json:"working_size"`
}

// Engine is the memory retrieval engine.
type Engine struct {
	graph  graph.Driver
	cache  cache.Adapter
	logger *zap.Logger
	group  singleflight.Group

	now func() time.Time
}

// NewEngine creates a retrieval engine over the given graph store and cache.
func NewEngine(g graph.Driver, c cache.Adapter, logger *zap.Logger) *Engine {
	return &Engine{
		graph:  g,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// GetContext returns the user's memory context for a query. The graph store
// being unreachable degrades to a minimal empty context rather than an error;
// cache failures fall through to the store.
func (e *Engine) GetContext(ctx context.Context, userID, queryText string, channel brain.Channel, sourceID string, opts *Options) (*brain.BrainMemoryContext, error) {
	if userID == "" {
		return nil, &brain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !channel.Valid() {
		return nil, &brain.ValidationError{Field: "channel", Reason: "unknown channel"}
	}

	size := DefaultWorkingMemorySize
	ttl := cache.DefaultTTL
	if opts != nil {
		if opts.WorkingMemorySize > 0 {
			size = opts.WorkingMemorySize
		}
		if opts.CacheTTL > 0 {
			ttl = opts.CacheTTL
		}
	}

	query := Query{
		UserID:           userID,
		QueryText:        queryText,
		Channel:          channel,
		SourceIdentifier: sourceID,
		WorkingSize:      size,
	}

	now := e.now()
	key := cacheKey(query)

	if cached := e.fromCache(ctx, key); cached != nil {
		cached.RetrievalTimestamp = now
		return cached, nil
	}

	// Concurrent identical queries collapse onto one graph assembly.
	v, err, _ := e.group.Do(key, func() (any, error) {
		assembled, err := e.assemble(ctx, query, now)
		if err != nil {
			return nil, err
		}

		e.toCache(ctx, key, assembled, ttl)

		return assembled, nil
	})
	if err != nil {
		e.logger.Error("graph store unavailable, returning minimal context",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return brain.MinimalContext(userID, channel, now), nil
	}

	// Clone so concurrent callers sharing the single-flight result do not
	// share tier slices or hint pointers.
	result := v.(*brain.BrainMemoryContext).Clone()
	result.RetrievalTimestamp = now

	return result, nil
}

// cacheKey hashes the query parameters into a user-scoped cache key.
func cacheKey(query Query) string {
	payload, _ := json.Marshal(query)
	sum := sha256.Sum256(payload)

	return query.UserID + ":" + opGetContext + ":" + hex.EncodeToString(sum[:8])
}

func (e *Engine) fromCache(ctx context.Context, key string) *brain.BrainMemoryContext {
	payload, err := e.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		return nil
	}
	if err != nil {
		e.logger.Warn("cache get failed, falling through to graph",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}

	var mc brain.BrainMemoryContext
	if err := json.Unmarshal(payload, &mc); err != nil {
		e.logger.Warn("failed to decode cached context, falling through",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}

	return &mc
}

func (e *Engine) toCache(ctx context.Context, key string, mc *brain.BrainMemoryContext, ttl time.Duration) {
	payload, err := json.Marshal(mc)
	if err != nil {
		e.logger.Warn("failed to encode context for cache", zap.Error(err))
		return
	}

	if err := e.cache.Set(ctx, key, payload, ttl); err != nil {
		e.logger.Warn("cache set failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// assemble builds the full context from the graph store.
func (e *Engine) assemble(ctx context.Context, query Query, now time.Time) (*brain.BrainMemoryContext, error) {
	working, err := e.workingTier(ctx, query, now)
	if err != nil {
		return nil, err
	}

	episodic, memories, err := e.episodicTier(ctx, query.UserID, now)
	if err != nil {
		return nil, err
	}

	semantic, conceptChannels, err := e.semanticTier(ctx, working.Messages, memories)
	if err != nil {
		return nil, err
	}

	mc := &brain.BrainMemoryContext{
		UserID:   query.UserID,
		Channel:  query.Channel,
		Working:  working,
		Episodic: episodic,
		Semantic: semantic,
		MemoryStrength: memoryStrength(len(working.Messages), query.WorkingSize,
			len(episodic.Threads), len(semantic.ActiveConcepts)),
		ConsolidationScore: consolidationScore(memories),
		RetrievalTimestamp: now,
	}

	mc.ContextChannels, mc.CrossChannel = correlateChannels(working.Messages, episodic.Threads, conceptChannels)

	attachHints(mc, query.Channel)

	return mc, nil
}

func (e *Engine) workingTier(ctx context.Context, query Query, now time.Time) (brain.WorkingMemory, error) {
	msgs, err := e.graph.MessagesByUser(ctx, query.UserID, now.Add(-workingLookback), now.Add(workingLookahead))
	if err != nil {
		return brain.WorkingMemory{}, fmt.Errorf("failed to load working-window messages: %w", err)
	}

	scored, stats := scoreMessages(msgs, now, query.WorkingSize)

	modified, err := e.graph.RecentlyModified(ctx, query.UserID, now.Add(-recentlyModifiedWindow))
	if err != nil {
		return brain.WorkingMemory{}, fmt.Errorf("failed to load recently modified messages: %w", err)
	}

	return brain.WorkingMemory{
		Messages:         scored,
		TimeWindowStats:  stats,
		RecentlyModified: modified,
	}, nil
}

func (e *Engine) episodicTier(ctx context.Context, userID string, now time.Time) (brain.EpisodicMemory, []brain.Memory, error) {
	memories, err := e.graph.EpisodicMemories(ctx, userID, now.Add(-episodicWindow))
	if err != nil {
		return brain.EpisodicMemory{}, nil, fmt.Errorf("failed to load episodic memories: %w", err)
	}

	ids := make([]string, 0, len(memories))
	for _, mem := range memories {
		ids = append(ids, mem.ID)
	}

	strengths, err := e.graph.ConsolidationStrengths(ctx, ids)
	if err != nil {
		return brain.EpisodicMemory{}, nil, fmt.Errorf("failed to load consolidation strengths: %w", err)
	}

	return brain.EpisodicMemory{Threads: groupThreads(memories, strengths)}, memories, nil
}

// semanticTier activates concepts mentioned by the working and episodic
// tiers, then expands one hop along RELATED_TO edges. It also reports which
// channels activated each concept, for cross-channel correlation.
func (e *Engine) semanticTier(ctx context.Context, working []brain.ScoredMessage, memories []brain.Memory) (brain.SemanticMemory, map[string]map[brain.Channel]bool, error) {
	channelByMessage := make(map[string]brain.Channel)

	messageIDs := make([]string, 0, len(working)+len(memories))
	for _, msg := range working {
		messageIDs = append(messageIDs, msg.ID)
		channelByMessage[msg.ID] = msg.Channel
	}
	for _, mem := range memories {
		if mem.OriginMessageID == "" {
			continue
		}
		messageIDs = append(messageIDs, mem.OriginMessageID)
		channelByMessage[mem.OriginMessageID] = mem.Channel
	}

	mentions, err := e.graph.MentionedConcepts(ctx, messageIDs)
	if err != nil {
		return brain.SemanticMemory{}, nil, fmt.Errorf("failed to load mentioned concepts: %w", err)
	}

	conceptChannels := make(map[string]map[brain.Channel]bool)
	activeByID := make(map[string]brain.Concept)
	activeIDs := make([]string, 0)
	for _, mention := range mentions {
		if mention.ActivationStrength < semanticActivationThreshold {
			continue
		}

		if _, ok := activeByID[mention.Concept.ID]; !ok {
			activeByID[mention.Concept.ID] = mention.Concept
			activeIDs = append(activeIDs, mention.Concept.ID)
		}

		if conceptChannels[mention.Concept.ID] == nil {
			conceptChannels[mention.Concept.ID] = make(map[brain.Channel]bool)
		}
		conceptChannels[mention.Concept.ID][channelByMessage[mention.MessageID]] = true
	}

	active := make([]brain.Concept, 0, len(activeIDs))
	for _, id := range activeIDs {
		active = append(active, activeByID[id])
	}

	semantic := brain.SemanticMemory{ActiveConcepts: active}

	if len(activeIDs) == 0 {
		return semantic, conceptChannels, nil
	}

	assocs, err := e.graph.Associations(ctx, activeIDs)
	if err != nil {
		return brain.SemanticMemory{}, nil, fmt.Errorf("failed to load associations: %w", err)
	}
	semantic.Associations = assocs

	neighborIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, assoc := range assocs {
		for _, id := range []string{assoc.FromConceptID, assoc.ToConceptID} {
			if _, isActive := activeByID[id]; isActive || seen[id] {
				continue
			}
			seen[id] = true
			neighborIDs = append(neighborIDs, id)
		}
	}

	if len(neighborIDs) > 0 {
		neighbors, err := e.graph.ConceptsByIDs(ctx, neighborIDs)
		if err != nil {
			return brain.SemanticMemory{}, nil, fmt.Errorf("failed to load associated concepts: %w", err)
		}
		semantic.AssociatedConcepts = neighbors
	}

	return semantic, conceptChannels, nil
}

// correlateChannels lists every distinct channel in the assembled context and
// flags it cross-channel when one concept was activated from more than one
// channel.
func correlateChannels(working []brain.ScoredMessage, threads []brain.EpisodicThread, conceptChannels map[string]map[brain.Channel]bool) ([]brain.Channel, bool) {
	seen := make(map[brain.Channel]bool)
	channels := make([]brain.Channel, 0)

	add := func(ch brain.Channel) {
		if ch == "" || seen[ch] {
			return
		}
		seen[ch] = true
		channels = append(channels, ch)
	}

	for _, msg := range working {
		add(msg.Channel)
	}
	for _, thread := range threads {
		add(thread.Channel)
	}

	cross := false
	for _, byChannel := range conceptChannels {
		if len(byChannel) > 1 {
			cross = true
			break
		}
	}

	return channels, cross
}

func attachHints(mc *brain.BrainMemoryContext, channel brain.Channel) {
	switch channel {
	case brain.ChannelSMS:
		mc.SMSHints = &brain.SMSHints{
			CharacterBudget: 160,
			SuggestBrief:    true,
		}
	case brain.ChannelChat:
		mc.ChatHints = &brain.ChatHints{
			MaxLength:   2000,
			RichContent: true,
			ThreadAware: true,
		}
	}
}
