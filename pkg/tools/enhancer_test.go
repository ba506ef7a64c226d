package tools_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
	"github.com/omnii-ai/brainmem/pkg/tools"
)

func TestTools(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tools Suite")
}

// staticProvider serves a fixed memory context.
type staticProvider struct {
	mc  *brain.BrainMemoryContext
	err error
}

func (p *staticProvider) GetContext(_ context.Context, userID, _ string, channel brain.Channel, _ string, _ *retrieval.Options) (*brain.BrainMemoryContext, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.mc != nil {
		return p.mc, nil
	}
	return brain.MinimalContext(userID, channel, time.Now()), nil
}

// capturingRecorder records every RecordAction call.
type capturingRecorder struct {
	contents []string
	actions  []brain.ExternalActionContext
	err      error
}

func (r *capturingRecorder) RecordAction(_ context.Context, userID string, channel brain.Channel, sourceID, content string, action brain.ExternalActionContext) (*brain.ChatMessage, error) {
	r.contents = append(r.contents, content)
	r.actions = append(r.actions, action)
	if r.err != nil {
		return nil, r.err
	}
	return &brain.ChatMessage{UserID: userID, Channel: channel, SourceIdentifier: sourceID, Content: content}, nil
}

// scriptedExecutor returns a canned result or error, capturing the call.
type scriptedExecutor struct {
	call   tools.ToolCall
	result *tools.Result
	err    error
}

func (e *scriptedExecutor) Execute(_ context.Context, call tools.ToolCall) (*tools.Result, error) {
	e.call = call
	return e.result, e.err
}

var _ = Describe("Enhancer", func() {
	var (
		ctx      context.Context
		provider *staticProvider
		recorder *capturingRecorder
		executor *scriptedExecutor
		enhancer *tools.Enhancer
	)

	call := func() tools.ToolCall {
		return tools.ToolCall{
			Service:    "calendar",
			Operation:  "create_event",
			Parameters: map[string]any{"title": "dentist"},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		provider = &staticProvider{}
		recorder = &capturingRecorder{}
		executor = &scriptedExecutor{result: &tools.Result{Success: true}}
		enhancer = tools.NewEnhancer(provider, recorder, executor, zap.NewNop())
	})

	It("rejects a call without service or operation", func() {
		_, err := enhancer.ExecuteWithMemory(ctx, "user-1", tools.ToolCall{Service: "calendar"}, brain.ChannelChat, "room-9")

		var verr *brain.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(recorder.contents).To(BeEmpty())
	})

	It("executes and records a successful call", func() {
		result, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())

		Expect(recorder.contents).To(ConsistOf("executed calendar.create_event"))
		Expect(recorder.actions[0].ServiceType).To(Equal("calendar"))
		Expect(recorder.actions[0].Success).To(BeTrue())
	})

	It("enriches the call from memory without overwriting caller parameters", func() {
		ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		provider.mc = &brain.BrainMemoryContext{
			Working: brain.WorkingMemory{Messages: []brain.ScoredMessage{
				{ChatMessage: brain.ChatMessage{Timestamp: ts}},
			}},
			Semantic: brain.SemanticMemory{ActiveConcepts: []brain.Concept{
				{Name: "dentist", ActivationStrength: 0.9},
				{Name: "insurance", ActivationStrength: 0.5},
			}},
		}

		enriched := call()
		enriched.Parameters["related_entities"] = []string{"caller-set"}

		_, err := enhancer.ExecuteWithMemory(ctx, "user-1", enriched, brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())

		Expect(executor.call.Parameters["related_entities"]).To(Equal([]string{"caller-set"}))
		Expect(executor.call.Parameters["reference_date"]).To(Equal(ts))
		Expect(executor.call.Parameters["title"]).To(Equal("dentist"))
	})

	It("ranks related entities by activation and caps them", func() {
		concepts := []brain.Concept{
			{Name: "f", ActivationStrength: 0.35},
			{Name: "a", ActivationStrength: 0.9},
			{Name: "b", ActivationStrength: 0.8},
			{Name: "c", ActivationStrength: 0.7},
			{Name: "d", ActivationStrength: 0.6},
			{Name: "e", ActivationStrength: 0.5},
		}
		provider.mc = &brain.BrainMemoryContext{
			Semantic: brain.SemanticMemory{ActiveConcepts: concepts},
		}

		_, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())

		Expect(executor.call.Parameters["related_entities"]).To(Equal([]string{"a", "b", "c", "d", "e"}))
	})

	It("executes unenriched when context retrieval fails", func() {
		provider.err = errors.New("retrieval down")

		result, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(executor.call.Parameters).NotTo(HaveKey("related_entities"))
	})

	It("records a failed execution before surfacing the error", func() {
		executor.result = nil
		executor.err = errors.New("webhook 500")

		_, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")

		var execErr *tools.ExecutionError
		Expect(errors.As(err, &execErr)).To(BeTrue())
		Expect(execErr.Service).To(Equal("calendar"))

		Expect(recorder.contents).To(ConsistOf("attempted calendar.create_event"))
		Expect(recorder.actions[0].Success).To(BeFalse())
	})

	It("treats an unsuccessful result as an attempt", func() {
		executor.result = &tools.Result{Success: false}

		result, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeFalse())
		Expect(recorder.contents).To(ConsistOf("attempted calendar.create_event"))
	})

	It("does not surface recorder failures", func() {
		recorder.err = errors.New("store down")

		result, err := enhancer.ExecuteWithMemory(ctx, "user-1", call(), brain.ChannelChat, "room-9")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
	})
})
