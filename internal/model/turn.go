// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// TOOL CALL / TOOL RESULT
// =============================================================================

// ToolCall is a structured request from the model to invoke an external
// capability. The ID is generated at detection time and is unique per call.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments is the serialized argument payload. It is always a JSON
	// object encoded as a string, regardless of which surface syntax the
	// call was detected in.
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing a single tool call. Every executed
// call produces exactly one result, success or error, before the
// conversation continues.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn represents a single turn in a conversation.
type Turn struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`

	// Tool activity
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// Streaming state
	IsStreaming bool `json:"is_streaming,omitempty"`
	IsThinking  bool `json:"is_thinking,omitempty"`

	// Metrics (assistant turns)
	DurationMs   int64   `json:"duration_ms,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
}

// NewTurn creates a new turn with a generated ID.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        GenerateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserTurn creates a new user turn.
func NewUserTurn(content string) Turn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates an empty assistant turn in streaming state.
func NewAssistantTurn() Turn {
	return Turn{
		ID:          GenerateID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// NewSystemTurn creates a new system turn.
func NewSystemTurn(content string) Turn {
	return NewTurn(RoleSystem, content)
}

// NewToolTurn creates a turn carrying a single tool result.
func NewToolTurn(result ToolResult) Turn {
	t := NewTurn(RoleTool, result.Content)
	t.ToolResults = []ToolResult{result}
	return t
}

// HasToolCalls returns true if the turn contains tool calls.
func (t *Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// Clone returns a deep copy of the turn. Slices are copied so the caller
// and the orchestrator never share backing arrays.
func (t Turn) Clone() Turn {
	clone := t
	if t.ToolCalls != nil {
		clone.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		copy(clone.ToolCalls, t.ToolCalls)
	}
	if t.ToolResults != nil {
		clone.ToolResults = make([]ToolResult, len(t.ToolResults))
		copy(clone.ToolResults, t.ToolResults)
	}
	return clone
}

// =============================================================================
// STREAMING UPDATE
// =============================================================================

// Update is delivered to the UI callback for every parsed record carrying
// visible content, and exactly once more at chain termination with Done set.
type Update struct {
	Turn Turn `json:"message"`
	Done bool `json:"done"`
}

// =============================================================================
// ID GENERATION
// =============================================================================

// GenerateID returns a random 16-hex-character identifier.
func GenerateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fall back to a timestamp-derived ID; collisions are acceptable
		// for display identity.
		return hex.EncodeToString([]byte(time.Now().Format("150405.000")))[:16]
	}
	return hex.EncodeToString(b)
}
