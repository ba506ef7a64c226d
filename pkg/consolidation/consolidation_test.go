package consolidation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	cacheinmemory "github.com/omnii-ai/brainmem/pkg/cache/inmemory"
	"github.com/omnii-ai/brainmem/pkg/consolidation"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
	"github.com/omnii-ai/brainmem/pkg/graph/inmemory"
	testutils "github.com/omnii-ai/brainmem/pkg/utils/test"
)

func TestConsolidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Consolidation Suite")
}

// capturingPublisher records events; safe for concurrent workers.
type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event *eventstream.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) byType(t string) []*eventstream.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*eventstream.Event
	for _, e := range p.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// linklessStore fails HAS_MEMORY writes, stranding memories mid-lifecycle.
type linklessStore struct {
	*inmemory.Driver
}

func (linklessStore) LinkHasMemory(_ context.Context, _ brain.HasMemory) error {
	return errors.New("edge write failed")
}

// flakyLinkStore fails the first HAS_MEMORY write, then recovers.
type flakyLinkStore struct {
	*inmemory.Driver

	mu     sync.Mutex
	failed bool
}

func (s *flakyLinkStore) LinkHasMemory(ctx context.Context, edge brain.HasMemory) error {
	s.mu.Lock()
	first := !s.failed
	s.failed = true
	s.mu.Unlock()

	if first {
		return errors.New("edge write failed")
	}
	return s.Driver.LinkHasMemory(ctx, edge)
}

// cancelAwareSummarizer surfaces job-context cancellation as an error.
type cancelAwareSummarizer struct{}

func (cancelAwareSummarizer) Summarize(ctx context.Context, _ brain.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "summary", nil
}

var _ = Describe("Consolidator", func() {
	var (
		ctx          context.Context
		driver       *inmemory.Driver
		adapter      *cacheinmemory.Adapter
		publisher    *capturingPublisher
		consolidator *consolidation.Consolidator
		now          time.Time
	)

	config := consolidation.Config{
		FreshAge:         24 * time.Hour,
		RetentionHorizon: 720 * time.Hour,
		DecayFactor:      0.5,
		NumWorkers:       1,
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		adapter = cacheinmemory.NewAdapter()
		publisher = &capturingPublisher{}
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		consolidator = consolidation.New(driver, adapter, publisher, nil, zap.NewNop(), config)
		consolidator.SetNow(func() time.Time { return now })
		DeferCleanup(consolidator.Close)
	})

	addAged := func(content string, age time.Duration) *brain.ChatMessage {
		msg := testutils.NewTestMessage("user-1", content, brain.ChannelSMS, now.Add(-age))
		msg.Intent = "statement"
		msg.ImportanceScore = 0.7
		Expect(driver.PutMessage(ctx, msg)).To(Succeed())
		return msg
	}

	It("promotes aged messages into consolidated episodic memories", func() {
		msg := addAged("the dentist moved my appointment", 48*time.Hour)

		report, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Consolidated).To(Equal(1))
		Expect(report.Failed).To(BeZero())
		Expect(report.Users).To(Equal(1))

		memories, err := driver.EpisodicMemories(ctx, "user-1", now.Add(-168*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(memories).To(HaveLen(1))

		mem := memories[0]
		Expect(mem.Status).To(Equal(brain.StatusConsolidated))
		Expect(mem.ConsolidationDate).NotTo(BeNil())
		Expect(mem.EpisodeType).To(Equal(brain.EpisodeConversation))
		Expect(mem.OriginMessageID).To(Equal(msg.ID))
		Expect(mem.SourceIdentifier).To(Equal(msg.SourceIdentifier))
		Expect(mem.Timestamp).To(Equal(msg.Timestamp))
		Expect(mem.Summary).To(ContainSubstring("dentist"))

		strengths, err := driver.ConsolidationStrengths(ctx, []string{mem.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(strengths[mem.ID]).To(ConsistOf(0.7))
	})

	It("is idempotent across runs", func() {
		addAged("old message", 48*time.Hour)

		_, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		second, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Consolidated).To(BeZero())

		memories, err := driver.EpisodicMemories(ctx, "user-1", now.Add(-168*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(memories).To(HaveLen(1))
	})

	It("leaves messages younger than the fresh age alone", func() {
		addAged("too fresh", time.Hour)

		report, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Consolidated).To(BeZero())
	})

	It("marks tool-action messages as service interactions", func() {
		msg := addAged("executed calendar.create_event", 48*time.Hour)
		msg.ActionContext = &brain.ExternalActionContext{ServiceType: "calendar", Operation: "create_event"}
		Expect(driver.UpdateMessage(ctx, msg)).To(Succeed())

		_, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		memories, err := driver.EpisodicMemories(ctx, "user-1", now.Add(-168*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(memories[0].EpisodeType).To(Equal(brain.EpisodeServiceInteraction))
	})

	It("publishes a consolidation event per memory", func() {
		addAged("a", 48*time.Hour)
		addAged("b", 48*time.Hour)

		_, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		events := publisher.byType(eventstream.EventTypeMemoryConsolidated)
		Expect(events).To(HaveLen(2))
		Expect(events[0].UserID).To(Equal("user-1"))
		Expect(events[0].Memory).NotTo(BeNil())
	})

	Describe("associations", func() {
		It("links concepts that co-occur in a consolidated message", func() {
			msg := addAged("dentist insurance paperwork", 48*time.Hour)

			a, err := driver.RecordMention(ctx, "user-1", "dentist", msg.ID, 0.9, now)
			Expect(err).NotTo(HaveOccurred())
			b, err := driver.RecordMention(ctx, "user-1", "insurance", msg.ID, 0.8, now)
			Expect(err).NotTo(HaveOccurred())

			report, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Associations).To(Equal(1))

			assocs, err := driver.Associations(ctx, []string{a.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(assocs).To(HaveLen(1))
			Expect(assocs[0].RelationshipType).To(Equal("co_occurrence"))
			Expect(assocs[0].Strength).To(BeNumerically("~", 1.0, 1e-9))
			_ = b
		})
	})

	Describe("decay", func() {
		It("decays concepts not mentioned in the batch", func() {
			msg := addAged("dentist visit", 48*time.Hour)

			mentioned, err := driver.RecordMention(ctx, "user-1", "dentist", msg.ID, 0.8, now)
			Expect(err).NotTo(HaveOccurred())
			unmentioned, err := driver.RecordMention(ctx, "user-1", "plumber", "other-msg", 0.8, now)
			Expect(err).NotTo(HaveOccurred())

			report, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Decayed).To(Equal(1))

			concepts, err := driver.ConceptsByIDs(ctx, []string{mentioned.ID, unmentioned.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(concepts[0].ActivationStrength).To(BeNumerically("~", 0.8, 1e-9))
			Expect(concepts[1].ActivationStrength).To(BeNumerically("~", 0.4, 1e-9))
		})
	})

	Describe("archival", func() {
		It("archives memories past the retention horizon", func() {
			mem := &brain.Memory{
				ID:        "mem-old",
				UserID:    "user-1",
				Timestamp: now.Add(-800 * time.Hour),
				Type:      brain.MemoryEpisodic,
				Status:    brain.StatusFresh,
				Channel:   brain.ChannelSMS,
			}
			Expect(driver.PutMemory(ctx, mem)).To(Succeed())
			Expect(driver.TransitionMemory(ctx, mem.ID, brain.StatusConsolidating, now.Add(-800*time.Hour))).To(Succeed())
			Expect(driver.TransitionMemory(ctx, mem.ID, brain.StatusConsolidated, now.Add(-800*time.Hour))).To(Succeed())

			report, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Archived).To(Equal(1))

			got, err := driver.GetMemory(ctx, mem.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(brain.StatusArchived))
		})

		It("keeps recently consolidated memories", func() {
			addAged("recent enough", 48*time.Hour)

			first, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Archived).To(BeZero())

			second, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Archived).To(BeZero())
		})
	})

	Describe("partial failure", func() {
		It("counts the failure and leaves the memory in a valid mid-state", func() {
			consolidator = consolidation.New(linklessStore{driver}, adapter, publisher, nil, zap.NewNop(), config)
			consolidator.SetNow(func() time.Time { return now })
			DeferCleanup(consolidator.Close)

			addAged("will strand", 48*time.Hour)

			report, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal(1))
			Expect(report.Consolidated).To(BeZero())

			memories, err := driver.EpisodicMemories(ctx, "user-1", now.Add(-168*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(memories).To(HaveLen(1))
			Expect(memories[0].Status).To(Equal(brain.StatusConsolidating))
		})

		It("resumes the stranded memory on the next run instead of minting another", func() {
			consolidator = consolidation.New(&flakyLinkStore{Driver: driver}, adapter, publisher, nil, zap.NewNop(), config)
			consolidator.SetNow(func() time.Time { return now })
			DeferCleanup(consolidator.Close)

			msg := addAged("strands then recovers", 48*time.Hour)

			first, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Failed).To(Equal(1))
			Expect(first.Consolidated).To(BeZero())

			second, err := consolidator.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Failed).To(BeZero())
			Expect(second.Consolidated).To(Equal(1))

			memories, err := driver.EpisodicMemories(ctx, "user-1", now.Add(-168*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(memories).To(HaveLen(1))
			Expect(memories[0].Status).To(Equal(brain.StatusConsolidated))
			Expect(memories[0].OriginMessageID).To(Equal(msg.ID))

			strengths, err := driver.ConsolidationStrengths(ctx, []string{memories[0].ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(strengths[memories[0].ID]).To(ConsistOf(0.7))
		})
	})

	Describe("cancellation", func() {
		It("hands the caller's context to in-flight jobs", func() {
			consolidator = consolidation.New(driver, adapter, publisher, cancelAwareSummarizer{}, zap.NewNop(), config)
			consolidator.SetNow(func() time.Time { return now })
			DeferCleanup(consolidator.Close)

			addAged("never summarized", 48*time.Hour)

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			report, err := consolidator.RunOnce(cancelled)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal(1))
			Expect(report.Consolidated).To(BeZero())
		})
	})

	It("flushes the user's cache after consolidating", func() {
		Expect(adapter.Set(ctx, "user-1:get_context:abc", []byte("stale"), time.Hour)).To(Succeed())
		addAged("flush trigger", 48*time.Hour)

		_, err := consolidator.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Len()).To(BeZero())
	})
})

var _ = Describe("Runner", func() {
	It("runs consolidation on its interval until stopped", func() {
		driver := inmemory.NewDriver()
		adapter := cacheinmemory.NewAdapter()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		consolidator := consolidation.New(driver, adapter, &capturingPublisher{}, nil, zap.NewNop(), consolidation.Config{NumWorkers: 1})
		consolidator.SetNow(func() time.Time { return now })
		defer consolidator.Close()

		msg := testutils.NewTestMessage("user-1", "aged", brain.ChannelSMS, now.Add(-48*time.Hour))
		Expect(driver.PutMessage(context.Background(), msg)).To(Succeed())

		runner := consolidation.NewRunner(consolidator, 10*time.Millisecond, zap.NewNop())
		runner.Start()
		defer runner.Stop()

		Eventually(func() int {
			memories, _ := driver.EpisodicMemories(context.Background(), "user-1", now.Add(-168*time.Hour))
			return len(memories)
		}).Should(Equal(1))
	})
})

var _ = Describe("StubSummarizer", func() {
	It("prefixes the intent and truncates long content", func() {
		long := make([]rune, 0, 600)
		for range 600 {
			long = append(long, 'x')
		}

		msg := brain.ChatMessage{Intent: "schedule", Content: string(long)}

		summary, err := consolidation.StubSummarizer{}.Summarize(context.Background(), msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary).To(HavePrefix("schedule: "))
		Expect(len([]rune(summary))).To(BeNumerically("<", 600))
	})
})
