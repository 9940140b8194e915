// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks one tool execution for the stats endpoint.
type ExecutionRecord struct {
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Truncated bool           `json:"truncated,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// =============================================================================
// EXECUTOR
// =============================================================================

// DefaultToolTimeout is applied when the incoming context carries no
// deadline.
const DefaultToolTimeout = 60 * time.Second

// DefaultMaxOutputChars bounds tool output fed back to the model.
const DefaultMaxOutputChars = 32000

const truncationNotice = "\n\n[output truncated]"

// Executor runs tool calls against a registry. It satisfies the chat
// orchestrator's ToolExecutor interface: unknown tool names return an
// error rather than a result, so the orchestrator can wrap the failure as
// an error result the model sees.
type Executor struct {
	registry *Registry

	timeout   time.Duration
	maxOutput int

	mu      sync.Mutex
	history []ExecutionRecord
}

// NewExecutor creates an executor over the registry. Zero timeout and
// maxOutput select the defaults.
func NewExecutor(registry *Registry, timeout time.Duration, maxOutput int) *Executor {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputChars
	}
	return &Executor{
		registry:  registry,
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

// Registry returns the underlying registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one tool call to completion and returns its output.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	start := time.Now()

	tool, ok := e.registry.Get(name)
	if !ok {
		err := fmt.Errorf("unknown tool: %s", name)
		e.record(ExecutionRecord{
			ToolName:  name,
			Args:      args,
			Timestamp: start,
			Duration:  time.Since(start),
			Error:     err.Error(),
		})
		return "", err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := tool.Handler.Execute(ctx, args)

	truncated := false
	if err == nil && len(out) > e.maxOutput {
		out = util.TruncateRunes(out, e.maxOutput) + truncationNotice
		truncated = true
	}

	rec := ExecutionRecord{
		ToolName:  name,
		Args:      args,
		Timestamp: start,
		Duration:  time.Since(start),
		Truncated: truncated,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	e.record(rec)

	return out, err
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = e.history[:0]
}

func (e *Executor) record(rec ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, rec)
}

// =============================================================================
// PARAMETER HELPERS
// =============================================================================

func getStringParam(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return fallback
}

func getIntParam(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64: // JSON numbers decode to float64
		return int(v)
	case int:
		return v
	}
	return fallback
}
