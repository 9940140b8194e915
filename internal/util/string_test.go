// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"tiny limit no ellipsis", "hello", 2, "he"},
		{"zero limit", "hello", 0, ""},
		{"unicode not split", "héllo wörld", 8, "héllo..."},
		{"cjk runes counted", "日本語のテキスト", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.maxRunes); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	// CJK characters are two columns wide.
	if got := TruncateWidth("日本語", 10); got != "日本語" {
		t.Errorf("TruncateWidth under limit = %q, want unchanged", got)
	}
	got := TruncateWidth("日本語のテキスト", 8)
	if got == "日本語のテキスト" {
		t.Error("TruncateWidth over limit did not truncate")
	}
}

func TestSafeSubstring(t *testing.T) {
	tests := []struct {
		s          string
		start, end int
		want       string
	}{
		{"hello", 1, 3, "el"},
		{"hello", 0, -1, "hello"},
		{"hello", -2, 3, "hel"},
		{"hello", 3, 2, ""},
		{"hello", 10, 12, ""},
		{"héllo", 1, 2, "é"},
	}
	for _, tt := range tests {
		if got := SafeSubstring(tt.s, tt.start, tt.end); got != tt.want {
			t.Errorf("SafeSubstring(%q, %d, %d) = %q, want %q", tt.s, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}
}
