package retrieval_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	cacheinmemory "github.com/omnii-ai/brainmem/pkg/cache/inmemory"
	"github.com/omnii-ai/brainmem/pkg/graph/inmemory"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
	testutils "github.com/omnii-ai/brainmem/pkg/utils/test"
)

func TestRetrieval(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retrieval Engine Suite")
}

// countingStore counts full context assemblies by counting working-window
// reads, optionally holding them on a gate.
type countingStore struct {
	*inmemory.Driver

	assemblies atomic.Int64
	gate       chan struct{}
}

func (s *countingStore) MessagesByUser(ctx context.Context, userID string, from, to time.Time) ([]brain.ChatMessage, error) {
	s.assemblies.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.Driver.MessagesByUser(ctx, userID, from, to)
}

// brokenStore simulates a graph outage.
type brokenStore struct {
	*inmemory.Driver
}

func (brokenStore) MessagesByUser(_ context.Context, _ string, _, _ time.Time) ([]brain.ChatMessage, error) {
	return nil, errors.New("store unreachable")
}

var _ = Describe("Engine", func() {
	var (
		ctx     context.Context
		driver  *inmemory.Driver
		adapter *cacheinmemory.Adapter
		engine  *retrieval.Engine
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		adapter = cacheinmemory.NewAdapter()
		engine = retrieval.NewEngine(driver, adapter, zap.NewNop())
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		engine.SetNow(func() time.Time { return now })
	})

	addMessage := func(content string, ts time.Time, importance float64, channel brain.Channel) *brain.ChatMessage {
		msg := testutils.NewTestMessage("user-1", content, channel, ts)
		msg.ImportanceScore = importance
		Expect(driver.PutMessage(ctx, msg)).To(Succeed())
		return msg
	}

	Describe("validation", func() {
		It("rejects an empty user", func() {
			_, err := engine.GetContext(ctx, "", "q", brain.ChannelChat, "room-9", nil)

			var verr *brain.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("rejects an unknown channel", func() {
			_, err := engine.GetContext(ctx, "user-1", "q", brain.Channel("fax"), "room-9", nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("working memory", func() {
		It("buckets and ranks by composite score", func() {
			previous := addMessage("previous week", now.Add(-10*24*time.Hour), 0.5, brain.ChannelChat)
			current := addMessage("current week", now.Add(-2*24*time.Hour), 0.5, brain.ChannelChat)

			// Scheduled ahead but last modified days ago, so no recency bonus.
			next := addMessage("next week", now.Add(3*24*time.Hour), 0.5, brain.ChannelChat)
			next.LastModified = now.Add(-3 * 24 * time.Hour)
			Expect(driver.UpdateMessage(ctx, next)).To(Succeed())

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Working.Messages).To(HaveLen(3))

			// current_week bonus 0.3 > next_week 0.2 > previous_week 0.1
			Expect(mc.Working.Messages[0].ID).To(Equal(current.ID))
			Expect(mc.Working.Messages[0].Bucket).To(Equal(brain.BucketCurrentWeek))
			Expect(mc.Working.Messages[1].ID).To(Equal(next.ID))
			Expect(mc.Working.Messages[2].ID).To(Equal(previous.ID))
			Expect(mc.Working.Messages[2].CompositeScore).To(BeNumerically("~", 0.6, 1e-9))

			Expect(mc.Working.TimeWindowStats.PreviousWeek).To(Equal(1))
			Expect(mc.Working.TimeWindowStats.CurrentWeek).To(Equal(1))
			Expect(mc.Working.TimeWindowStats.NextWeek).To(Equal(1))
		})

		It("boosts recently modified messages", func() {
			stale := addMessage("stale", now.Add(-time.Hour), 0.9, brain.ChannelChat)
			stale.LastModified = now.Add(-3 * time.Hour)
			Expect(driver.UpdateMessage(ctx, stale)).To(Succeed())

			fresh := addMessage("fresh edit", now.Add(-3*24*time.Hour), 0.6, brain.ChannelChat)
			fresh.LastModified = now.Add(-time.Minute)
			Expect(driver.UpdateMessage(ctx, fresh)).To(Succeed())

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(mc.Working.Messages[0].ID).To(Equal(fresh.ID))
			Expect(mc.Working.Messages[0].RecentlyModified).To(BeTrue())
			Expect(mc.Working.RecentlyModified).To(HaveLen(1))
		})

		It("truncates to the working size while stats count everything", func() {
			for range 10 {
				addMessage("m", now.Add(-time.Hour), 0.5, brain.ChannelChat)
			}

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9",
				&retrieval.Options{WorkingMemorySize: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Working.Messages).To(HaveLen(3))
			Expect(mc.Working.TimeWindowStats.CurrentWeek).To(Equal(10))
		})

		It("excludes messages outside the three-week window", func() {
			addMessage("ancient", now.Add(-20*24*time.Hour), 0.9, brain.ChannelChat)
			addMessage("far future", now.Add(10*24*time.Hour), 0.9, brain.ChannelChat)

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Working.Messages).To(BeEmpty())
		})
	})

	Describe("episodic memory", func() {
		putMemory := func(source string, channel brain.Channel, status brain.ConsolidationStatus, strength float64) *brain.Memory {
			mem := &brain.Memory{
				ID:               "mem-" + source + "-" + string(status),
				UserID:           "user-1",
				Timestamp:        now.Add(-24 * time.Hour),
				Type:             brain.MemoryEpisodic,
				Status:           brain.StatusFresh,
				EpisodeType:      brain.EpisodeConversation,
				Channel:          channel,
				SourceIdentifier: source,
			}
			Expect(driver.PutMemory(ctx, mem)).To(Succeed())
			Expect(driver.TransitionMemory(ctx, mem.ID, brain.StatusConsolidating, now)).To(Succeed())
			if status == brain.StatusConsolidated {
				Expect(driver.TransitionMemory(ctx, mem.ID, brain.StatusConsolidated, now)).To(Succeed())
			}
			Expect(driver.LinkHasMemory(ctx, brain.HasMemory{
				MessageID:             "msg-" + mem.ID,
				MemoryID:              mem.ID,
				Type:                  brain.MemoryEpisodic,
				ConsolidationStrength: strength,
			})).To(Succeed())
			return mem
		}

		It("groups memories into threads by channel and source", func() {
			putMemory("+15550100", brain.ChannelSMS, brain.StatusConsolidated, 0.8)
			putMemory("+15550100", brain.ChannelSMS, brain.StatusConsolidating, 0.4)
			putMemory("room-9", brain.ChannelChat, brain.StatusConsolidated, 0.6)

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Episodic.Threads).To(HaveLen(2))

			var sms brain.EpisodicThread
			for _, thread := range mc.Episodic.Threads {
				if thread.Channel == brain.ChannelSMS {
					sms = thread
				}
			}
			Expect(sms.Memories).To(HaveLen(2))
			Expect(sms.SemanticWeight).To(BeNumerically("~", 0.6, 1e-9))
		})

		It("scores consolidation progress", func() {
			putMemory("a", brain.ChannelChat, brain.StatusConsolidated, 0.5)
			putMemory("b", brain.ChannelChat, brain.StatusConsolidating, 0.5)

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.ConsolidationScore).To(BeNumerically("~", 0.75, 1e-9))
		})
	})

	Describe("semantic memory", func() {
		It("activates concepts above the threshold and walks one hop", func() {
			msg := addMessage("the dentist", now.Add(-time.Hour), 0.5, brain.ChannelChat)

			active, err := driver.RecordMention(ctx, "user-1", "dentist", msg.ID, 0.9, now)
			Expect(err).NotTo(HaveOccurred())
			weak, err := driver.RecordMention(ctx, "user-1", "parking", msg.ID, 0.1, now)
			Expect(err).NotTo(HaveOccurred())
			neighbor, err := driver.RecordMention(ctx, "user-1", "insurance", "unrelated-msg", 0.9, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.UpsertAssociation(ctx, brain.Association{
				FromConceptID:    active.ID,
				ToConceptID:      neighbor.ID,
				Strength:         0.7,
				RelationshipType: "co_occurrence",
			})).To(Succeed())

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(mc.Semantic.ActiveConcepts).To(HaveLen(1))
			Expect(mc.Semantic.ActiveConcepts[0].Name).To(Equal("dentist"))
			Expect(mc.Semantic.Associations).To(HaveLen(1))
			Expect(mc.Semantic.AssociatedConcepts).To(HaveLen(1))
			Expect(mc.Semantic.AssociatedConcepts[0].Name).To(Equal("insurance"))
			_ = weak
		})
	})

	Describe("cross-channel correlation", func() {
		It("flags a concept activated from two channels", func() {
			smsMsg := addMessage("dentist via sms", now.Add(-time.Hour), 0.5, brain.ChannelSMS)
			chatMsg := addMessage("dentist via chat", now.Add(-2*time.Hour), 0.5, brain.ChannelChat)

			_, err := driver.RecordMention(ctx, "user-1", "dentist", smsMsg.ID, 0.9, now)
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.RecordMention(ctx, "user-1", "dentist", chatMsg.ID, 0.9, now)
			Expect(err).NotTo(HaveOccurred())

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.CrossChannel).To(BeTrue())
			Expect(mc.ContextChannels).To(ConsistOf(brain.ChannelSMS, brain.ChannelChat))
		})

		It("stays false for a single channel", func() {
			msg := addMessage("dentist", now.Add(-time.Hour), 0.5, brain.ChannelChat)
			_, err := driver.RecordMention(ctx, "user-1", "dentist", msg.ID, 0.9, now)
			Expect(err).NotTo(HaveOccurred())

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.CrossChannel).To(BeFalse())
		})
	})

	Describe("channel hints", func() {
		It("attaches SMS hints on the sms channel", func() {
			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelSMS, "+15550100", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.SMSHints).NotTo(BeNil())
			Expect(mc.SMSHints.CharacterBudget).To(Equal(160))
			Expect(mc.SMSHints.SuggestBrief).To(BeTrue())
			Expect(mc.ChatHints).To(BeNil())
		})

		It("attaches chat hints on the chat channel", func() {
			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.ChatHints).NotTo(BeNil())
			Expect(mc.ChatHints.MaxLength).To(Equal(2000))
			Expect(mc.SMSHints).To(BeNil())
		})

		It("attaches none on websocket", func() {
			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelWebsocket, "session-1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.SMSHints).To(BeNil())
			Expect(mc.ChatHints).To(BeNil())
		})
	})

	Describe("degradation", func() {
		It("returns a minimal context when the store is unreachable", func() {
			engine = retrieval.NewEngine(brokenStore{driver}, adapter, zap.NewNop())
			engine.SetNow(func() time.Time { return now })

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Working.Messages).To(BeEmpty())
			Expect(mc.MemoryStrength).To(BeZero())
			Expect(mc.UserID).To(Equal("user-1"))
		})

		It("falls through to the store when the cache is down", func() {
			engine = retrieval.NewEngine(driver, testutils.FailingCache{}, zap.NewNop())
			engine.SetNow(func() time.Time { return now })
			addMessage("hello", now.Add(-time.Hour), 0.5, brain.ChannelChat)

			mc, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mc.Working.Messages).To(HaveLen(1))
		})
	})

	Describe("caching", func() {
		It("serves repeat queries from cache with a fresh retrieval timestamp", func() {
			store := &countingStore{Driver: driver}
			engine = retrieval.NewEngine(store, adapter, zap.NewNop())
			engine.SetNow(func() time.Time { return now })
			addMessage("hello", now.Add(-time.Hour), 0.5, brain.ChannelChat)

			first, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Minute)
			second, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.assemblies.Load()).To(Equal(int64(1)))
			Expect(second.RetrievalTimestamp).To(Equal(first.RetrievalTimestamp.Add(time.Minute)))
			Expect(second.Working.Messages).To(HaveLen(1))
		})

		It("uses distinct cache entries for distinct queries", func() {
			store := &countingStore{Driver: driver}
			engine = retrieval.NewEngine(store, adapter, zap.NewNop())
			engine.SetNow(func() time.Time { return now })

			_, err := engine.GetContext(ctx, "user-1", "q1", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.GetContext(ctx, "user-1", "q2", brain.ChannelChat, "room-9", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.assemblies.Load()).To(Equal(int64(2)))
		})

		It("collapses concurrent identical queries onto one assembly", func() {
			store := &countingStore{Driver: driver, gate: make(chan struct{})}
			engine = retrieval.NewEngine(store, adapter, zap.NewNop())
			engine.SetNow(func() time.Time { return now })

			const callers = 8
			var wg sync.WaitGroup
			wg.Add(callers)
			for range callers {
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := engine.GetContext(ctx, "user-1", "q", brain.ChannelChat, "room-9", nil)
					Expect(err).NotTo(HaveOccurred())
				}()
			}

			// Let the callers pile up on the in-flight assembly.
			time.Sleep(50 * time.Millisecond)
			close(store.gate)
			wg.Wait()

			Expect(store.assemblies.Load()).To(Equal(int64(1)))
		})
	})
})
