// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming response orchestrator: it consumes
// the record stream from the inference backend, reconciles cumulative and
// incremental content fragments, separates visible text from thinking spans
// and embedded tool calls, executes detected tools through an injected
// executor, and continues the conversation until the model produces a final
// answer or the shared tool-call budget is exhausted.
//
// The continuation logic is a loop over explicit chain state, not
// recursion: the call budget and cancellation checks live in one place.
package chat
