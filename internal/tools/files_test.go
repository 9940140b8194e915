// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/rigchat/internal/store"
)

func newToolStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "files.db")})
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func execTool(t *testing.T, reg *Registry, name string, args map[string]any) (string, error) {
	t.Helper()
	tool, ok := reg.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return tool.Handler.Execute(context.Background(), args)
}

func TestFileTools_WriteReadList(t *testing.T) {
	s := newToolStore(t)
	reg := newTestRegistry(t, FileTools(s)...)

	out, err := execTool(t, reg, "write_file", map[string]any{
		"path":    "notes.md",
		"content": "hello",
	})
	if err != nil {
		t.Fatalf("write_file failed: %v", err)
	}
	if !strings.Contains(out, "notes.md") {
		t.Errorf("write_file output = %q", out)
	}

	out, err = execTool(t, reg, "read_file", map[string]any{"path": "notes.md"})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("read_file = %q, want %q", out, "hello")
	}

	out, err = execTool(t, reg, "list_files", nil)
	if err != nil {
		t.Fatalf("list_files failed: %v", err)
	}
	if !strings.Contains(out, "notes.md (5 bytes)") {
		t.Errorf("list_files = %q", out)
	}
}

func TestFileTools_MissingFile(t *testing.T) {
	reg := newTestRegistry(t, FileTools(newToolStore(t))...)

	if _, err := execTool(t, reg, "read_file", map[string]any{"path": "nope.txt"}); err == nil {
		t.Error("read_file missing succeeded, want error")
	}
	if _, err := execTool(t, reg, "delete_file", map[string]any{"path": "nope.txt"}); err == nil {
		t.Error("delete_file missing succeeded, want error")
	}
}

func TestFileTools_ExistsAndDelete(t *testing.T) {
	reg := newTestRegistry(t, FileTools(newToolStore(t))...)

	if _, err := execTool(t, reg, "write_file", map[string]any{"path": "a.txt", "content": "x"}); err != nil {
		t.Fatalf("write_file failed: %v", err)
	}

	out, err := execTool(t, reg, "file_exists", map[string]any{"path": "a.txt"})
	if err != nil || !strings.Contains(out, "exists.") {
		t.Errorf("file_exists = (%q, %v)", out, err)
	}

	if _, err := execTool(t, reg, "delete_file", map[string]any{"path": "a.txt"}); err != nil {
		t.Fatalf("delete_file failed: %v", err)
	}

	out, _ = execTool(t, reg, "file_exists", map[string]any{"path": "a.txt"})
	if !strings.Contains(out, "does not exist") {
		t.Errorf("file_exists after delete = %q", out)
	}
}

func TestFileTools_SearchReplace(t *testing.T) {
	reg := newTestRegistry(t, FileTools(newToolStore(t))...)

	if _, err := execTool(t, reg, "write_file", map[string]any{
		"path": "code.go", "content": "foo bar foo",
	}); err != nil {
		t.Fatalf("write_file failed: %v", err)
	}

	out, err := execTool(t, reg, "search_replace", map[string]any{
		"path": "code.go",
		"replacements": []any{
			map[string]any{"search": "foo", "replace": "qux"},
		},
	})
	if err != nil {
		t.Fatalf("search_replace failed: %v", err)
	}
	if !strings.Contains(out, "2 replacement(s)") {
		t.Errorf("search_replace = %q, want 2 replacements reported", out)
	}

	got, _ := execTool(t, reg, "read_file", map[string]any{"path": "code.go"})
	if got != "qux bar qux" {
		t.Errorf("content = %q, want %q", got, "qux bar qux")
	}
}

func TestFileTools_SearchReplaceValidation(t *testing.T) {
	reg := newTestRegistry(t, FileTools(newToolStore(t))...)

	if _, err := execTool(t, reg, "search_replace", map[string]any{
		"path": "x.txt",
	}); err == nil {
		t.Error("search_replace without replacements succeeded, want error")
	}

	if _, err := execTool(t, reg, "search_replace", map[string]any{
		"path":         "x.txt",
		"replacements": []any{},
	}); err == nil {
		t.Error("search_replace with empty replacements succeeded, want error")
	}

	if _, err := execTool(t, reg, "search_replace", map[string]any{
		"path": "x.txt",
		"replacements": []any{
			map[string]any{"search": "", "replace": "y"},
		},
	}); err == nil {
		t.Error("search_replace with empty search succeeded, want error")
	}
}
