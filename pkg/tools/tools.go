// Package tools wires external tool execution into memory. The Enhancer
// enriches a tool call's parameters from the caller's memory context before
// execution and records the attempt as a message afterwards, so actions
// become part of future memory whether they succeeded or not.
package tools

import (
	"context"
	"fmt"
)

// ToolCall names one external tool invocation.
type ToolCall struct {
	Service    string         `json:"service"`
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Result is the outcome of an executed tool call.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
}

// Executor runs a tool call against its external service.
type Executor interface {
	Execute(ctx context.Context, call ToolCall) (*Result, error)
}

// ExecutionError reports a failure from the external tool. The attempt is
// still recorded in memory before this surfaces to the caller.
type ExecutionError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s/%s failed: %v", e.Service, e.Operation, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
