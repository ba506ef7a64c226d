// Package inmemory provides a map-backed graph.Driver for tests and local
// development. All state lives in process memory guarded by a single RWMutex,
// which also gives RecordMention its required atomicity.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/graph"
)

const keySep = "\x00"

// Driver implements graph.Driver using in-memory maps.
type Driver struct {
	mu sync.RWMutex

	messages     map[string]*brain.ChatMessage
	concepts     map[string]*brain.Concept
	conceptByKey map[string]string // userID+name -> concept ID
	memories     map[string]*brain.Memory
	tags         map[string]*brain.Tag
	tagByKey     map[string]string // userID+name -> tag ID
	mentions     map[string]*brain.Mention
	hasMemory    map[string]*brain.HasMemory
	associations map[string]*brain.Association
}

// NewDriver creates an empty in-memory graph driver.
func NewDriver() *Driver {
	return &Driver{
		messages:     make(map[string]*brain.ChatMessage),
		concepts:     make(map[string]*brain.Concept),
		conceptByKey: make(map[string]string),
		memories:     make(map[string]*brain.Memory),
		tags:         make(map[string]*brain.Tag),
		tagByKey:     make(map[string]string),
		mentions:     make(map[string]*brain.Mention),
		hasMemory:    make(map[string]*brain.HasMemory),
		associations: make(map[string]*brain.Association),
	}
}

func (d *Driver) PutMessage(_ context.Context, msg *brain.ChatMessage) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *msg
	d.messages[msg.ID] = &cp
	return nil
}

func (d *Driver) GetMessage(_ context.Context, id string) (*brain.ChatMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msg, ok := d.messages[id]
	if !ok {
		return nil, graph.ErrNotFound{Kind: "message", ID: id}
	}

	cp := *msg
	return &cp, nil
}

func (d *Driver) UpdateMessage(_ context.Context, msg *brain.ChatMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[msg.ID]; !ok {
		return graph.ErrNotFound{Kind: "message", ID: msg.ID}
	}

	cp := *msg
	d.messages[msg.ID] = &cp
	return nil
}

func (d *Driver) MessagesByUser(_ context.Context, userID string, from, to time.Time) ([]brain.ChatMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.ChatMessage
	for _, msg := range d.messages {
		if msg.UserID != userID {
			continue
		}
		if msg.Timestamp.Before(from) || msg.Timestamp.After(to) {
			continue
		}
		out = append(out, *msg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out, nil
}

func (d *Driver) RecentlyModified(_ context.Context, userID string, since time.Time) ([]brain.ChatMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.ChatMessage
	for _, msg := range d.messages {
		if msg.UserID != userID || msg.LastModified.Before(since) {
			continue
		}
		out = append(out, *msg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})

	return out, nil
}

func (d *Driver) MessagesAwaitingConsolidation(_ context.Context, olderThan time.Time, limit int) ([]brain.ChatMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.ChatMessage
	for _, msg := range d.messages {
		if !msg.Timestamp.Before(olderThan) {
			continue
		}
		if _, ok := d.hasMemory[msg.ID+keySep+string(brain.MemoryEpisodic)]; ok {
			continue
		}
		out = append(out, *msg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (d *Driver) RecordMention(_ context.Context, userID, conceptName, messageID string, confidence float64, at time.Time) (*brain.Concept, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := userID + keySep + strings.ToLower(conceptName)

	var concept *brain.Concept
	if id, ok := d.conceptByKey[key]; ok {
		concept = d.concepts[id]
		concept.ActivationStrength = brain.RecombineActivation(concept.ActivationStrength, confidence)
	} else {
		concept = &brain.Concept{
			ID:                 uuid.NewString(),
			UserID:             userID,
			Name:               conceptName,
			ActivationStrength: brain.ClampUnit(confidence),
			SemanticWeight:     brain.ClampUnit(confidence),
		}
		d.concepts[concept.ID] = concept
		d.conceptByKey[key] = concept.ID
	}

	concept.LastMentioned = at

	edgeKey := messageID + keySep + concept.ID
	if edge, ok := d.mentions[edgeKey]; ok {
		// Already linked: update strength in place, no duplicate edge.
		edge.Strength = brain.ClampUnit(confidence)
	} else {
		d.mentions[edgeKey] = &brain.Mention{
			MessageID: messageID,
			ConceptID: concept.ID,
			Strength:  brain.ClampUnit(confidence),
		}
		concept.MentionCount++
	}

	cp := *concept
	return &cp, nil
}

func (d *Driver) ConceptsByUser(_ context.Context, userID string) ([]brain.Concept, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.Concept
	for _, c := range d.concepts {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *Driver) ConceptsByIDs(_ context.Context, ids []string) ([]brain.Concept, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]brain.Concept, 0, len(ids))
	for _, id := range ids {
		if c, ok := d.concepts[id]; ok {
			out = append(out, *c)
		}
	}

	return out, nil
}

func (d *Driver) MentionedConcepts(_ context.Context, messageIDs []string) ([]graph.MentionedConcept, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	var out []graph.MentionedConcept
	for _, edge := range d.mentions {
		if !wanted[edge.MessageID] {
			continue
		}
		concept, ok := d.concepts[edge.ConceptID]
		if !ok {
			continue
		}
		out = append(out, graph.MentionedConcept{
			Concept:   *concept,
			MessageID: edge.MessageID,
			Strength:  edge.Strength,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageID != out[j].MessageID {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (d *Driver) DecayConcepts(_ context.Context, userID string, exceptIDs []string, factor float64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	skip := make(map[string]bool, len(exceptIDs))
	for _, id := range exceptIDs {
		skip[id] = true
	}

	decayed := 0
	for _, c := range d.concepts {
		if c.UserID != userID || skip[c.ID] {
			continue
		}
		c.ActivationStrength = brain.ClampUnit(c.ActivationStrength * factor)
		decayed++
	}

	return decayed, nil
}

func (d *Driver) UpsertAssociation(_ context.Context, assoc brain.Association) error {
	if assoc.FromConceptID == assoc.ToConceptID {
		return graph.ErrSelfAssociation
	}

	from, to := assoc.FromConceptID, assoc.ToConceptID
	if from > to {
		from, to = to, from
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := from + keySep + to
	if existing, ok := d.associations[key]; ok {
		existing.Strength = brain.ClampUnit(assoc.Strength)
		existing.RelationshipType = assoc.RelationshipType
		return nil
	}

	d.associations[key] = &brain.Association{
		FromConceptID:    from,
		ToConceptID:      to,
		Strength:         brain.ClampUnit(assoc.Strength),
		RelationshipType: assoc.RelationshipType,
	}

	return nil
}

func (d *Driver) Associations(_ context.Context, conceptIDs []string) ([]brain.Association, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool, len(conceptIDs))
	for _, id := range conceptIDs {
		wanted[id] = true
	}

	var out []brain.Association
	for _, a := range d.associations {
		if wanted[a.FromConceptID] || wanted[a.ToConceptID] {
			out = append(out, *a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FromConceptID != out[j].FromConceptID {
			return out[i].FromConceptID < out[j].FromConceptID
		}
		return out[i].ToConceptID < out[j].ToConceptID
	})

	return out, nil
}

func (d *Driver) PutMemory(_ context.Context, mem *brain.Memory) error {
	if mem == nil {
		return errors.New("cannot store nil memory")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *mem
	d.memories[mem.ID] = &cp
	return nil
}

func (d *Driver) GetMemory(_ context.Context, id string) (*brain.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	mem, ok := d.memories[id]
	if !ok {
		return nil, graph.ErrNotFound{Kind: "memory", ID: id}
	}

	cp := *mem
	return &cp, nil
}

func (d *Driver) UpdateMemory(_ context.Context, mem *brain.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.memories[mem.ID]
	if !ok {
		return graph.ErrNotFound{Kind: "memory", ID: mem.ID}
	}

	cp := *mem
	cp.Status = existing.Status // lifecycle only moves via TransitionMemory
	d.memories[mem.ID] = &cp
	return nil
}

func (d *Driver) TransitionMemory(_ context.Context, id string, to brain.ConsolidationStatus, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mem, ok := d.memories[id]
	if !ok {
		return graph.ErrNotFound{Kind: "memory", ID: id}
	}

	if mem.Status == to {
		return nil
	}

	if !mem.Status.CanAdvanceTo(to) {
		return graph.ErrInvalidTransition{MemoryID: id, From: mem.Status, To: to}
	}

	mem.Status = to
	if to == brain.StatusConsolidated {
		t := at
		mem.ConsolidationDate = &t
	}

	return nil
}

func (d *Driver) EpisodicMemories(_ context.Context, userID string, since time.Time) ([]brain.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.Memory
	for _, mem := range d.memories {
		if mem.UserID != userID || mem.Type != brain.MemoryEpisodic {
			continue
		}
		if mem.Status != brain.StatusConsolidating && mem.Status != brain.StatusConsolidated {
			continue
		}
		if mem.Timestamp.Before(since) {
			continue
		}
		out = append(out, *mem)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out, nil
}

func (d *Driver) MemoriesConsolidatedBefore(_ context.Context, cutoff time.Time) ([]brain.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []brain.Memory
	for _, mem := range d.memories {
		if mem.Status != brain.StatusConsolidated || mem.ConsolidationDate == nil {
			continue
		}
		if !mem.ConsolidationDate.Before(cutoff) {
			continue
		}
		out = append(out, *mem)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConsolidationDate.Before(*out[j].ConsolidationDate)
	})

	return out, nil
}

func (d *Driver) MemoryByOrigin(_ context.Context, originMessageID string) (*brain.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *brain.Memory
	for _, mem := range d.memories {
		if mem.Type != brain.MemoryEpisodic || mem.OriginMessageID != originMessageID {
			continue
		}
		if found == nil || mem.Timestamp.After(found.Timestamp) {
			found = mem
		}
	}

	if found == nil {
		return nil, graph.ErrNotFound{Kind: "memory", ID: originMessageID}
	}

	cp := *found
	return &cp, nil
}

func (d *Driver) LinkHasMemory(_ context.Context, edge brain.HasMemory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := edge.MessageID + keySep + string(edge.Type)
	cp := edge
	d.hasMemory[key] = &cp
	return nil
}

func (d *Driver) ConsolidationStrengths(_ context.Context, memoryIDs []string) (map[string][]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool, len(memoryIDs))
	for _, id := range memoryIDs {
		wanted[id] = true
	}

	out := make(map[string][]float64)
	for _, edge := range d.hasMemory {
		if wanted[edge.MemoryID] {
			out[edge.MemoryID] = append(out[edge.MemoryID], edge.ConsolidationStrength)
		}
	}

	return out, nil
}

func (d *Driver) UpsertTag(_ context.Context, userID, name string, category brain.TagCategory, origin brain.Channel, at time.Time) (*brain.Tag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := userID + keySep + strings.ToLower(name)
	if id, ok := d.tagByKey[key]; ok {
		tag := d.tags[id]
		tag.UsageCount++
		tag.LastUsed = at
		cp := *tag
		return &cp, nil
	}

	tag := &brain.Tag{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		UsageCount:    1,
		LastUsed:      at,
		ChannelOrigin: origin,
		Category:      category,
	}
	d.tags[tag.ID] = tag
	d.tagByKey[key] = tag.ID

	cp := *tag
	return &cp, nil
}

func (d *Driver) Stats(_ context.Context) (graph.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return graph.Stats{
		Messages:     int64(len(d.messages)),
		Concepts:     int64(len(d.concepts)),
		Memories:     int64(len(d.memories)),
		Tags:         int64(len(d.tags)),
		Associations: int64(len(d.associations)),
	}, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
