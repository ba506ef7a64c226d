package tools

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
)

// maxRelatedEntities caps how many concept names are attached to a call.
const maxRelatedEntities = 5

// ContextProvider supplies the memory context used to enrich a call.
type ContextProvider interface {
	GetContext(ctx context.Context, userID, queryText string, channel brain.Channel, sourceID string, opts *retrieval.Options) (*brain.BrainMemoryContext, error)
}

// ActionRecorder persists the record of an executed action.
type ActionRecorder interface {
	RecordAction(ctx context.Context, userID string, channel brain.Channel, sourceID, content string, action brain.ExternalActionContext) (*brain.ChatMessage, error)
}

// Enhancer executes tool calls with memory on both sides: parameters are
// enriched from the user's context before execution, and the attempt is
// written back afterwards.
type Enhancer struct {
	provider ContextProvider
	recorder ActionRecorder
	executor Executor
	logger   *zap.Logger
}

// NewEnhancer creates a memory-aware tool executor.
func NewEnhancer(provider ContextProvider, recorder ActionRecorder, executor Executor, logger *zap.Logger) *Enhancer {
	return &Enhancer{
		provider: provider,
		recorder: recorder,
		executor: executor,
		logger:   logger,
	}
}

// ExecuteWithMemory enriches the call from the user's memory context, runs
// it, and records the attempt. Executor failures surface as ExecutionError
// after the attempt is recorded.
func (e *Enhancer) ExecuteWithMemory(ctx context.Context, userID string, call ToolCall, channel brain.Channel, sourceID string) (*Result, error) {
	if call.Service == "" || call.Operation == "" {
		return nil, &brain.ValidationError{Field: "tool_call", Reason: "service and operation required"}
	}

	mc, err := e.provider.GetContext(ctx, userID, call.Operation, channel, sourceID, nil)
	if err != nil {
		e.logger.Warn("failed to load memory context for tool call, executing unenriched",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	} else {
		call = enrich(call, mc)
	}

	result, execErr := e.executor.Execute(ctx, call)

	success := execErr == nil && result != nil && result.Success
	e.record(ctx, userID, channel, sourceID, call, success)

	if execErr != nil {
		return nil, &ExecutionError{
			Service:   call.Service,
			Operation: call.Operation,
			Err:       execErr,
		}
	}

	return result, nil
}

// enrich merges memory-derived parameters into the call without overwriting
// anything the caller set.
func enrich(call ToolCall, mc *brain.BrainMemoryContext) ToolCall {
	params := make(map[string]any, len(call.Parameters)+2)
	for k, v := range call.Parameters {
		params[k] = v
	}

	if _, set := params["related_entities"]; !set {
		if entities := topConcepts(mc.Semantic.ActiveConcepts); len(entities) > 0 {
			params["related_entities"] = entities
		}
	}

	if _, set := params["reference_date"]; !set {
		if len(mc.Working.Messages) > 0 {
			params["reference_date"] = mc.Working.Messages[0].Timestamp
		}
	}

	call.Parameters = params

	return call
}

func topConcepts(concepts []brain.Concept) []string {
	sorted := append([]brain.Concept(nil), concepts...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ActivationStrength > sorted[j].ActivationStrength
	})

	if len(sorted) > maxRelatedEntities {
		sorted = sorted[:maxRelatedEntities]
	}

	names := make([]string, 0, len(sorted))
	for _, concept := range sorted {
		names = append(names, concept.Name)
	}

	return names
}

// record writes the attempt into memory. The write survives the caller's
// deadline; failing to record is logged, never surfaced.
func (e *Enhancer) record(ctx context.Context, userID string, channel brain.Channel, sourceID string, call ToolCall, success bool) {
	content := fmt.Sprintf("executed %s.%s", call.Service, call.Operation)
	if !success {
		content = fmt.Sprintf("attempted %s.%s", call.Service, call.Operation)
	}

	action := brain.ExternalActionContext{
		ServiceType: call.Service,
		Operation:   call.Operation,
		Success:     success,
	}

	_, err := e.recorder.RecordAction(context.WithoutCancel(ctx), userID, channel, sourceID, content, action)
	if err != nil {
		e.logger.Error("failed to record tool attempt",
			zap.String("user_id", userID),
			zap.String("service", call.Service),
			zap.Error(err),
		)
	}
}
