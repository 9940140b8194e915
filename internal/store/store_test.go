// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "files.db")
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// BASIC OPERATIONS
// =============================================================================

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	if err := s.Write(ctx, "notes/todo.md", "# TODO\n- ship it"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(ctx, "notes/todo.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "# TODO\n- ship it" {
		t.Errorf("Read = %q, want original content", got)
	}
}

func TestStore_WriteOverwrites(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	if err := s.Write(ctx, "a.txt", "first"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, "a.txt", "second"); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	got, _ := s.Read(ctx, "a.txt")
	if got != "second" {
		t.Errorf("Read = %q, want %q", got, "second")
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1 after overwrite", n)
	}
}

func TestStore_ReadMissing(t *testing.T) {
	s := openTestStore(t, Config{})

	_, err := s.Read(context.Background(), "nope.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read missing = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteAndExists(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	if err := s.Write(ctx, "gone.txt", "x"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ok, err := s.Exists(ctx, "gone.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}

	if err := s.Delete(ctx, "gone.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	ok, _ = s.Exists(ctx, "gone.txt")
	if ok {
		t.Error("Exists = true after delete")
	}
	if err := s.Delete(ctx, "gone.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}
}

func TestStore_ListSorted(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	for _, p := range []string{"b.txt", "a.txt", "sub/c.txt"} {
		if err := s.Write(ctx, p, "data"); err != nil {
			t.Fatalf("Write %s failed: %v", p, err)
		}
	}

	files, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("List = %d files, want 3", len(files))
	}
	want := []string{"a.txt", "b.txt", "sub/c.txt"}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, f.Path, want[i])
		}
		if f.Size != 4 {
			t.Errorf("List[%d].Size = %d, want 4", i, f.Size)
		}
	}
}

// =============================================================================
// PATH VALIDATION
// =============================================================================

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a.txt", "a.txt", false},
		{"sub/dir/file.md", "sub/dir/file.md", false},
		{"sub/./file.md", "sub/file.md", false},
		{"windows\\style.txt", "windows/style.txt", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../escape.txt", "", true},
		{"sub/../../escape.txt", "", true},
		{".", "", true},
	}

	for _, tt := range tests {
		got, err := CleanPath(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("CleanPath(%q) err = %v, want ErrInvalidPath", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("CleanPath(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// SIZE CAPS
// =============================================================================

func TestStore_PerFileCap(t *testing.T) {
	s := openTestStore(t, Config{MaxFileBytes: 10})
	ctx := context.Background()

	if err := s.Write(ctx, "small.txt", "tiny"); err != nil {
		t.Fatalf("Write under cap failed: %v", err)
	}
	err := s.Write(ctx, "big.txt", strings.Repeat("x", 11))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Write over cap = %v, want ErrQuotaExceeded", err)
	}
}

func TestStore_TotalCap(t *testing.T) {
	s := openTestStore(t, Config{MaxTotalBytes: 10})
	ctx := context.Background()

	if err := s.Write(ctx, "a.txt", "12345"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, "b.txt", "12345"); err != nil {
		t.Fatalf("Write at cap failed: %v", err)
	}
	if err := s.Write(ctx, "c.txt", "x"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Write past total cap = %v, want ErrQuotaExceeded", err)
	}

	// Overwriting frees the old size first.
	if err := s.Write(ctx, "a.txt", "abcde"); err != nil {
		t.Errorf("Overwrite within cap failed: %v", err)
	}
}

// =============================================================================
// SEARCH / REPLACE
// =============================================================================

func TestStore_SearchReplace(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	if err := s.Write(ctx, "code.go", "foo bar foo baz"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	n, err := s.SearchReplace(ctx, "code.go", []Replacement{
		{Search: "foo", Replace: "qux"},
		{Search: "baz", Replace: "end"},
	})
	if err != nil {
		t.Fatalf("SearchReplace failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Replacements = %d, want 3", n)
	}

	got, _ := s.Read(ctx, "code.go")
	if got != "qux bar qux end" {
		t.Errorf("Content = %q, want %q", got, "qux bar qux end")
	}
}

func TestStore_SearchReplaceMissAborts(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	if err := s.Write(ctx, "a.txt", "hello world"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, err := s.SearchReplace(ctx, "a.txt", []Replacement{
		{Search: "hello", Replace: "goodbye"},
		{Search: "absent", Replace: "x"},
	})
	if !errors.Is(err, ErrSearchMissing) {
		t.Fatalf("SearchReplace = %v, want ErrSearchMissing", err)
	}

	// The first replacement must not have been committed.
	got, _ := s.Read(ctx, "a.txt")
	if got != "hello world" {
		t.Errorf("Content = %q, want unmodified on abort", got)
	}
}
