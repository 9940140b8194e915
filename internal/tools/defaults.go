// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"fmt"

	"github.com/jeranaias/rigchat/internal/store"
)

// DefaultRegistry builds the full tool set: web search, page fetch, table
// rendering, and the workspace file tools. The search client, fetcher, and
// store are shared with the HTTP API's direct endpoints.
func DefaultRegistry(search *SearchClient, fetcher *Fetcher, files *store.Store) (*Registry, error) {
	reg := NewRegistry()
	all := []Tool{
		WebSearchTool(search),
		FetchURLTool(fetcher),
		CreateTableTool(),
	}
	all = append(all, FileTools(files)...)

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
	}
	return reg, nil
}
