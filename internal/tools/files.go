// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/store"
)

// =============================================================================
// FILE TOOLS
// =============================================================================

// FileTools returns the workspace file tools bound to the store.
func FileTools(s *store.Store) []Tool {
	return []Tool{
		readFileTool(s),
		writeFileTool(s),
		listFilesTool(s),
		deleteFileTool(s),
		fileExistsTool(s),
		searchReplaceTool(s),
	}
}

func readFileTool(s *store.Store) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace.",
		Schema: functionSchema("read_file",
			"Read the content of a file from the workspace.",
			map[string]ToolProperty{
				"path": {Type: "string", Description: "Relative path of the file to read"},
			},
			[]string{"path"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			path := getStringParam(args, "path", "")
			content, err := s.Read(ctx, path)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return "", fmt.Errorf("read_file: %s does not exist", path)
				}
				return "", fmt.Errorf("read_file: %w", err)
			}
			return content, nil
		}),
	}
}

func writeFileTool(s *store.Store) Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write a file to the workspace, creating or overwriting it.",
		Schema: functionSchema("write_file",
			"Write content to a file in the workspace. Creates the file or overwrites it.",
			map[string]ToolProperty{
				"path":    {Type: "string", Description: "Relative path of the file to write"},
				"content": {Type: "string", Description: "The full content to write"},
			},
			[]string{"path", "content"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			path := getStringParam(args, "path", "")
			content := getStringParam(args, "content", "")
			if err := s.Write(ctx, path, content); err != nil {
				return "", fmt.Errorf("write_file: %w", err)
			}
			return fmt.Sprintf("Wrote %d bytes to %s.", len(content), path), nil
		}),
	}
}

func listFilesTool(s *store.Store) Tool {
	return Tool{
		Name:        "list_files",
		Description: "List the files in the workspace.",
		Schema: functionSchema("list_files",
			"List all files in the workspace with their sizes.",
			map[string]ToolProperty{},
			nil,
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			files, err := s.List(ctx)
			if err != nil {
				return "", fmt.Errorf("list_files: %w", err)
			}
			if len(files) == 0 {
				return "The workspace is empty.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%d file(s):\n", len(files))
			for _, f := range files {
				fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.Size)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		}),
	}
}

func deleteFileTool(s *store.Store) Tool {
	return Tool{
		Name:        "delete_file",
		Description: "Delete a file from the workspace.",
		Schema: functionSchema("delete_file",
			"Delete a file from the workspace.",
			map[string]ToolProperty{
				"path": {Type: "string", Description: "Relative path of the file to delete"},
			},
			[]string{"path"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			path := getStringParam(args, "path", "")
			if err := s.Delete(ctx, path); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return "", fmt.Errorf("delete_file: %s does not exist", path)
				}
				return "", fmt.Errorf("delete_file: %w", err)
			}
			return fmt.Sprintf("Deleted %s.", path), nil
		}),
	}
}

func fileExistsTool(s *store.Store) Tool {
	return Tool{
		Name:        "file_exists",
		Description: "Check whether a file exists in the workspace.",
		Schema: functionSchema("file_exists",
			"Check whether a file exists in the workspace.",
			map[string]ToolProperty{
				"path": {Type: "string", Description: "Relative path of the file to check"},
			},
			[]string{"path"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			path := getStringParam(args, "path", "")
			ok, err := s.Exists(ctx, path)
			if err != nil {
				return "", fmt.Errorf("file_exists: %w", err)
			}
			if ok {
				return fmt.Sprintf("%s exists.", path), nil
			}
			return fmt.Sprintf("%s does not exist.", path), nil
		}),
	}
}

func searchReplaceTool(s *store.Store) Tool {
	return Tool{
		Name:        "search_replace",
		Description: "Apply search/replace edits to a workspace file.",
		Schema: functionSchema("search_replace",
			"Apply one or more search/replace edits to a file. Every search string must occur at least once or no edit is made.",
			map[string]ToolProperty{
				"path": {Type: "string", Description: "Relative path of the file to edit"},
				"replacements": {
					Type:        "array",
					Description: "Edits to apply, in order",
					Items: &ToolProperty{
						Type:        "object",
						Description: "An edit with 'search' and 'replace' string fields",
					},
				},
			},
			[]string{"path", "replacements"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			path := getStringParam(args, "path", "")

			replacements, err := decodeReplacements(args["replacements"])
			if err != nil {
				return "", fmt.Errorf("search_replace: %w", err)
			}

			n, err := s.SearchReplace(ctx, path, replacements)
			if err != nil {
				switch {
				case errors.Is(err, store.ErrNotFound):
					return "", fmt.Errorf("search_replace: %s does not exist", path)
				case errors.Is(err, store.ErrSearchMissing):
					return "", fmt.Errorf("search_replace: %w (no changes made)", err)
				}
				return "", fmt.Errorf("search_replace: %w", err)
			}
			return fmt.Sprintf("Applied %d replacement(s) in %s.", n, path), nil
		}),
	}
}

// decodeReplacements converts the decoded JSON argument into typed
// replacements via a round trip through encoding/json.
func decodeReplacements(raw any) ([]store.Replacement, error) {
	if raw == nil {
		return nil, errors.New("replacements is required")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid replacements: %w", err)
	}
	var replacements []store.Replacement
	if err := json.Unmarshal(data, &replacements); err != nil {
		return nil, fmt.Errorf("invalid replacements: %w", err)
	}
	if len(replacements) == 0 {
		return nil, errors.New("replacements is empty")
	}
	for i, r := range replacements {
		if r.Search == "" {
			return nil, fmt.Errorf("replacement %d has an empty search string", i)
		}
	}
	return replacements, nil
}
