// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the tool system the chat orchestrator executes
// detected tool calls against: web search (DuckDuckGo HTML, no API key),
// page fetch with HTML-to-markdown conversion, markdown table rendering,
// and file operations over the workspace store.
//
// The Executor satisfies the orchestrator's ToolExecutor interface. It
// fails loudly on unknown tool names so the failure can be fed back to the
// model, bounds each execution with a timeout, truncates oversized output,
// and keeps an execution history for the stats endpoint.
package tools
