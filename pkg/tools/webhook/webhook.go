// Package webhook implements the tool executor contract over a single HTTP
// endpoint: tool calls are POSTed as JSON and the endpoint routes them to the
// actual external services.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omnii-ai/brainmem/pkg/tools"
)

const defaultTimeout = 30 * time.Second

// Executor dispatches tool calls to a webhook endpoint.
type Executor struct {
	url    string
	client *http.Client
}

// NewExecutor creates a webhook executor for the given endpoint URL.
func NewExecutor(url string) *Executor {
	return &Executor{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Execute POSTs the call and decodes the endpoint's result.
func (e *Executor) Execute(ctx context.Context, call tools.ToolCall) (*tools.Result, error) {
	payload, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	var result tools.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode webhook response: %w", err)
	}

	return &result, nil
}
