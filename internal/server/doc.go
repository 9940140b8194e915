// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP API behind the browser chat UI.
//
// # Endpoints
//
//   - POST   /api/chat         - Run a chat chain, streaming NDJSON updates
//   - GET    /api/search       - Direct web search
//   - GET    /api/fetch        - Direct page fetch (markdown)
//   - GET    /api/files        - List workspace files
//   - GET    /api/files/{path} - Read a workspace file
//   - PUT    /api/files/{path} - Write a workspace file
//   - DELETE /api/files/{path} - Delete a workspace file
//   - GET    /api/models       - List installed backend models
//   - GET    /api/health       - Health check
//   - GET    /api/stats        - Usage statistics and tool history
//   - GET    /api/config       - Current configuration
//   - PUT    /api/config       - Update one configuration key
//
// The chat endpoint emits one JSON object per line: a model.Update per
// progress event and a final update with done=true. Failures after
// streaming has begun are reported as a terminal {"error": ...} line.
//
// All routes sit behind a middleware chain: panic recovery, security
// headers, request logging, CORS, and per-IP rate limiting.
package server
