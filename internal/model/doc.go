// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared between the chat
// orchestrator, the tool system, and the HTTP API: conversation turns,
// tool calls, tool results, and streaming updates.
//
// Turns are value types. The orchestrator receives the conversation
// history by value and reports progress through updated copies delivered
// via callback; it never mutates caller-owned state.
package model
