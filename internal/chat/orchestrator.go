// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// StreamBackend issues streaming chat requests. *ollama.Client satisfies it.
type StreamBackend interface {
	ChatStream(ctx context.Context, req ollama.ChatRequest, callback ollama.StreamCallback) error
}

// ToolExecutor runs one tool call to completion. Implementations must fail
// loudly (return an error) on unknown tool names so the failure can be fed
// back to the model as an error result.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// UpdateFunc receives streaming updates: at least once per parsed record
// carrying visible content, and exactly once more with Done set when the
// chain terminates.
type UpdateFunc func(update model.Update)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultMaxToolCalls caps total executed tool calls across one chain,
	// including every continuation round.
	DefaultMaxToolCalls = 20

	// DefaultForceSearchThreshold is how much visible content may stream in
	// before a web search is forced (web-search mode, no tool call yet).
	// Tuned empirically for models that describe searching instead of
	// emitting the call.
	DefaultForceSearchThreshold = 50

	cancelNotice = "\n\n⚠️ Request cancelled by user."
	limitNotice  = "\n\n⚠️ Tool call limit reached. Stopping here."

	// Structural per-turn overhead added to heuristic input token counts.
	turnOverheadTokens = 4
)

// Config controls one Orchestrator instance.
type Config struct {
	// Model is the backend model name; empty uses the client default.
	Model string

	// SystemPrompt, when non-empty, is prepended as a system message.
	SystemPrompt string

	// Options are passed through to the backend unchanged.
	Options *ollama.Options

	// Tools advertised to the backend for native function calling.
	Tools []ollama.Tool

	// ForceSearch enables the forced web-search policy: if visible content
	// exceeds ForceSearchThreshold with no tool call detected yet, a
	// web_search call is synthesized from the raw user message.
	ForceSearch          bool
	ForceSearchThreshold int

	// MaxToolCalls overrides DefaultMaxToolCalls when positive.
	MaxToolCalls int
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives one chat chain: stream, reconcile, extract, execute
// tools, continue. It holds no per-chain state; one instance may serve many
// sequential Send calls.
type Orchestrator struct {
	backend  StreamBackend
	executor ToolExecutor
	cfg      Config
}

// New creates an orchestrator. executor may be nil, in which case detected
// tool calls terminate the chain as plain final output.
func New(backend StreamBackend, executor ToolExecutor, cfg Config) *Orchestrator {
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}
	if cfg.ForceSearchThreshold <= 0 {
		cfg.ForceSearchThreshold = DefaultForceSearchThreshold
	}
	return &Orchestrator{backend: backend, executor: executor, cfg: cfg}
}

// chainState is the state shared across every continuation round of one
// Send invocation. The call budget is deliberately not reset between
// rounds.
type chainState struct {
	callsUsed int
	forced    bool

	promptTokens int
	evalTokens   int
}

// roundResult is what one streaming round produced.
type roundResult struct {
	ext      Extraction
	thinking string
	calls    []model.ToolCall
	canceled bool
}

// Send runs one logical user request to completion: it streams the model
// response, executes detected tool calls through the injected executor, and
// loops with synthetic continuation turns until the model produces a final
// answer, the shared call budget is exhausted, or ctx is cancelled.
//
// history and userMessage are read, never mutated; progress is delivered as
// updated turn copies through onUpdate. The returned turn is the terminal
// assistant turn. Only transport failures return a non-nil error;
// cancellation and budget exhaustion terminate normally with a notice in
// the visible content.
func (o *Orchestrator) Send(ctx context.Context, history []model.Turn, userMessage string, onUpdate UpdateFunc) (model.Turn, error) {
	start := time.Now()
	turn := model.NewAssistantTurn()
	messages := o.buildMessages(history, userMessage)

	var chain chainState
	var visibleParts, thinkingParts []string

	for {
		res, err := o.streamRound(ctx, messages, &turn, &chain, visibleParts, thinkingParts, onUpdate)

		if res.ext.Visible != "" {
			visibleParts = append(visibleParts, res.ext.Visible)
		}
		if res.thinking != "" {
			thinkingParts = append(thinkingParts, res.thinking)
		}

		if res.canceled {
			o.finalize(&turn, joinParts(visibleParts)+cancelNotice, joinParts(thinkingParts), start, messages, &chain)
			o.emitDone(turn, onUpdate)
			return turn, nil
		}
		if err != nil {
			o.finalize(&turn, joinParts(visibleParts), joinParts(thinkingParts), start, messages, &chain)
			o.emitDone(turn, onUpdate)
			return turn, err
		}

		calls := res.calls

		// Forced-search fallback: web-search mode, the stream completed
		// with content but the model never called a tool.
		if len(calls) == 0 && o.shouldForceSearch(&chain) && res.ext.Visible != "" {
			chain.forced = true
			calls = []model.ToolCall{synthesizeWebSearch(userMessage)}
		}

		if len(calls) == 0 || o.executor == nil {
			o.finalize(&turn, joinParts(visibleParts), joinParts(thinkingParts), start, messages, &chain)
			o.emitDone(turn, onUpdate)
			return turn, nil
		}

		turn.ToolCalls = append(turn.ToolCalls, calls...)

		results, limitHit := o.runTools(ctx, calls, &chain)
		turn.ToolResults = append(turn.ToolResults, results...)

		if limitHit {
			turn.ToolCalls = nil
			o.finalize(&turn, joinParts(visibleParts)+limitNotice, joinParts(thinkingParts), start, messages, &chain)
			o.emitDone(turn, onUpdate)
			return turn, nil
		}

		// Continuation: synthetic assistant turn with its thinking
		// preserved, then one tool turn per result, then stream again
		// under the same assistant identity and budget.
		messages = append(messages, ollama.Message{
			Role:     "assistant",
			Content:  res.ext.Visible,
			Thinking: res.thinking,
		})
		for _, r := range results {
			messages = append(messages, ollama.Message{Role: "tool", Content: r.Content})
		}
	}
}

// =============================================================================
// STREAMING ROUND
// =============================================================================

// streamRound runs one backend streaming call, reconciling and extracting
// per record and forwarding progress updates. It returns when the stream
// completes, the forced-search policy short-circuits it, or ctx is
// cancelled.
func (o *Orchestrator) streamRound(ctx context.Context, messages []ollama.Message, turn *model.Turn, chain *chainState, prevVisible, prevThinking []string, onUpdate UpdateFunc) (roundResult, error) {
	// Per-round sub-context so the forced-search policy can abandon the
	// rest of the stream without cancelling the whole chain.
	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()

	var acc string
	var fieldThinking string
	var nativeCalls []model.ToolCall
	var ext Extraction
	forcedMidStream := false

	req := ollama.ChatRequest{
		Model:    o.cfg.Model,
		Messages: messages,
		Options:  o.cfg.Options,
		Tools:    o.cfg.Tools,
	}

	err := o.backend.ChatStream(roundCtx, req, func(rec ollama.StreamRecord) {
		if rec.Content != "" {
			acc = Reconcile(acc, rec.Content)
		}
		if rec.Thinking != "" {
			fieldThinking = Reconcile(fieldThinking, rec.Thinking)
		}
		for _, tc := range rec.ToolCalls {
			nativeCalls = append(nativeCalls, fromNativeCall(tc))
		}
		if rec.Done {
			chain.promptTokens += rec.PromptEvalCount
			chain.evalTokens += rec.EvalCount
		}

		ext = Extract(acc)

		if !forcedMidStream && len(ext.ToolCalls) == 0 && len(nativeCalls) == 0 &&
			o.shouldForceSearch(chain) && len(ext.Visible) > o.cfg.ForceSearchThreshold {
			forcedMidStream = true
			cancelRound()
		}

		if rec.Content == "" && rec.Thinking == "" && !rec.Done {
			return
		}

		progress := turn.Clone()
		progress.Content = joinParts(append(append([]string(nil), prevVisible...), ext.Visible))
		progress.Thinking = joinParts(append(append([]string(nil), prevThinking...), mergeThinking(fieldThinking, ext.Thinking)))
		progress.IsThinking = ext.ThinkingOpen
		onUpdate(model.Update{Turn: progress})
	})

	// Whatever was accumulated before interruption still goes through the
	// normal extraction path.
	ext = Extract(acc)

	res := roundResult{
		ext:      ext,
		thinking: mergeThinking(fieldThinking, ext.Thinking),
		calls:    append(append([]model.ToolCall(nil), ext.ToolCalls...), nativeCalls...),
	}

	if ctx.Err() != nil {
		res.canceled = true
		return res, nil
	}
	if forcedMidStream {
		chain.forced = true
		res.calls = []model.ToolCall{synthesizeWebSearch(lastUserContent(messages))}
		return res, nil
	}
	return res, err
}

// shouldForceSearch reports whether the forced web-search policy is armed:
// web-search mode on, an executor present, and no tool activity yet in this
// chain.
func (o *Orchestrator) shouldForceSearch(chain *chainState) bool {
	return o.cfg.ForceSearch && o.executor != nil && !chain.forced && chain.callsUsed == 0
}

func synthesizeWebSearch(query string) model.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return model.ToolCall{
		ID:        uuid.NewString(),
		Name:      "web_search",
		Arguments: string(args),
	}
}

// fromNativeCall converts a backend-native tool call to the internal shape.
func fromNativeCall(tc ollama.ToolCall) model.ToolCall {
	args, err := json.Marshal(tc.Function.Arguments)
	if err != nil || tc.Function.Arguments == nil {
		args = []byte("{}")
	}
	return model.ToolCall{
		ID:        uuid.NewString(),
		Name:      tc.Function.Name,
		Arguments: string(args),
	}
}

// =============================================================================
// TOOL EXECUTION
// =============================================================================

// runTools executes calls strictly in detection order, each awaited to
// completion before the next starts. Executor failures become error-shaped
// results, never propagated errors. Calls beyond the shared budget are not
// executed; they receive a synthetic limit-reached error result and
// limitHit is set.
func (o *Orchestrator) runTools(ctx context.Context, calls []model.ToolCall, chain *chainState) ([]model.ToolResult, bool) {
	results := make([]model.ToolResult, 0, len(calls))
	limitHit := false

	for _, call := range calls {
		if chain.callsUsed >= o.cfg.MaxToolCalls {
			limitHit = true
			results = append(results, model.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: "Error: tool call limit reached",
				IsError: true,
			})
			continue
		}
		chain.callsUsed++

		out, err := o.executor.Execute(ctx, call.Name, decodeArgs(call.Arguments))
		if err != nil {
			results = append(results, model.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: "Error: " + err.Error(),
				IsError: true,
			})
			continue
		}
		results = append(results, model.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: out,
		})
	}

	return results, limitHit
}

func decodeArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}

// =============================================================================
// FINALIZATION & METRICS
// =============================================================================

// finalize stamps terminal state and metrics onto the turn.
func (o *Orchestrator) finalize(turn *model.Turn, visible, thinking string, start time.Time, messages []ollama.Message, chain *chainState) {
	turn.Content = visible
	turn.Thinking = thinking
	turn.IsStreaming = false
	turn.IsThinking = false

	elapsed := time.Since(start)
	turn.DurationMs = elapsed.Milliseconds()

	in := chain.promptTokens
	if in == 0 {
		in = estimateInputTokens(messages)
	}
	out := chain.evalTokens
	if out == 0 {
		out = EstimateTokens(thinking) + EstimateTokens(visible)
	}
	turn.InputTokens = in
	turn.OutputTokens = out

	if secs := elapsed.Seconds(); secs > 0 {
		turn.TokensPerSec = float64(out) / secs
	}
}

func (o *Orchestrator) emitDone(turn model.Turn, onUpdate UpdateFunc) {
	onUpdate(model.Update{Turn: turn.Clone(), Done: true})
}

// EstimateTokens approximates a token count as character length divided by
// four, rounded up. Counts are heuristic by design; the backend's eval
// counts take precedence when present.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func estimateInputTokens(messages []ollama.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + turnOverheadTokens
	}
	return total
}

// =============================================================================
// MESSAGE BUILDING
// =============================================================================

// buildMessages converts caller-owned history plus the new user message
// into the backend wire shape.
func (o *Orchestrator) buildMessages(history []model.Turn, userMessage string) []ollama.Message {
	messages := make([]ollama.Message, 0, len(history)+2)
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, ollama.NewSystemMessage(o.cfg.SystemPrompt))
	}
	for _, t := range history {
		messages = append(messages, ollama.Message{
			Role:    t.Role.String(),
			Content: t.Content,
		})
	}
	messages = append(messages, ollama.NewUserMessage(userMessage))
	return messages
}

// lastUserContent returns the most recent user message content; the forced
// search queries with the user's own words, not model output.
func lastUserContent(messages []ollama.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func mergeThinking(field, extracted string) string {
	switch {
	case field == "":
		return extracted
	case extracted == "":
		return field
	default:
		return field + "\n\n" + extracted
	}
}

func joinParts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
