// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// =============================================================================
// TOOL TYPE
// =============================================================================

// Handler executes one tool invocation.
type Handler interface {
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

func (f HandlerFunc) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// ToolProperty aliases the backend schema property type so tool files can
// build schemas without importing ollama directly.
type ToolProperty = ollama.ToolProperty

// Tool couples a handler with the schema advertised to the backend.
type Tool struct {
	Name        string
	Description string
	Schema      ollama.Tool
	Handler     Handler
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the available tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming
// error and fails.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: %s has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tools: %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the backend tool definitions for every registered tool,
// in name order, for advertisement on chat requests.
func (r *Registry) Schemas() []ollama.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]ollama.Tool, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, r.tools[name].Schema)
	}
	return schemas
}

// =============================================================================
// SCHEMA HELPERS
// =============================================================================

// functionSchema builds the backend tool definition shape.
func functionSchema(name, description string, props map[string]ollama.ToolProperty, required []string) ollama.Tool {
	return ollama.Tool{
		Type: "function",
		Function: ollama.ToolSchema{
			Name:        name,
			Description: description,
			Parameters: ollama.ToolParameters{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}
