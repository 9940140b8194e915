// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama inference server, including the newline-delimited JSON stream
// reader used for chat streaming.
//
// The stream reader is deliberately forgiving: malformed lines are protocol
// noise and are skipped, a partial trailing line is held across read cycles,
// and whatever is left in the buffer at end-of-stream gets one final
// best-effort parse.
package ollama
