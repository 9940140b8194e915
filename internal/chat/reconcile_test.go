// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
)

// =============================================================================
// RECONCILER TESTS
// =============================================================================

func TestReconcile_Cases(t *testing.T) {
	tests := []struct {
		name string
		acc  string
		frag string
		want string
	}{
		{"empty fragment", "Hello", "", "Hello"},
		{"first fragment", "", "Hello", "Hello"},
		{"cumulative replace", "Hel", "Hello", "Hello"},
		{"cumulative replay", "Hello world", "Hello world", "Hello world"},
		{"incremental append", "Hel", "lo", "Hello"},
		{"truncated resend prefix", "Hello world", "Hello", "Hello world"},
		{"overlap resend", "The weather is", "ther is fine", "The weather is"},
		{"short overlap still appends", "Hel", "l", "Hell"},
		{"no overlap appends", "abcdef", "xyz", "abcdefxyz"},
		{"same length no overlap appends", "abc", "xyz", "abcxyz"},
		{"longer fragment no overlap appends", "The ", "quick ", "The quick "},
		{"longer fragment no overlap appends 2", "Hel", " world!", "Hel world!"},
		{"longer fragment with overlap is a resend", "weather is", "ther is fine and warm", "ther is fine and warm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.acc, tt.frag)
			if got != tt.want {
				t.Errorf("Reconcile(%q, %q) = %q, want %q", tt.acc, tt.frag, got, tt.want)
			}
		})
	}
}

func TestReconcile_CumulativeReplayIdempotent(t *testing.T) {
	acc := ""
	for _, frag := range []string{"Hello", "Hello", "Hello world", "Hello world"} {
		acc = Reconcile(acc, frag)
	}
	if acc != "Hello world" {
		t.Errorf("Replayed cumulative stream = %q, want %q", acc, "Hello world")
	}
}

func TestReconcile_IncrementalSequenceConcatenates(t *testing.T) {
	frags := []string{"The ", "quick ", "brown ", "fox ", "jumps"}
	acc := ""
	for _, f := range frags {
		acc = Reconcile(acc, f)
	}
	want := strings.Join(frags, "")
	if acc != want {
		t.Errorf("Incremental sequence = %q, want %q", acc, want)
	}
}

func TestReconcile_CumulativeSequenceKeepsLast(t *testing.T) {
	frags := []string{"H", "He", "Hel", "Hell", "Hello", "Hello wor", "Hello world"}
	acc := ""
	for _, f := range frags {
		acc = Reconcile(acc, f)
	}
	if acc != "Hello world" {
		t.Errorf("Cumulative sequence = %q, want %q", acc, "Hello world")
	}
}

func TestReconcile_MixedModeSwitch(t *testing.T) {
	// Backend switches from cumulative to incremental mid-stream.
	acc := ""
	acc = Reconcile(acc, "Hello")
	acc = Reconcile(acc, "Hello world")
	acc = Reconcile(acc, ", goodbye")
	if acc != "Hello world, goodbye" {
		t.Errorf("Mixed stream = %q, want %q", acc, "Hello world, goodbye")
	}
}

func TestSuffixOverlap(t *testing.T) {
	tests := []struct {
		acc  string
		frag string
		want int
	}{
		{"The weather is", "ther is fine", 7},
		{"abc", "xyz", 0},
		{"abcdef", "defgh", 3},
		{"0123456789abcdef", "6789abcdefmore", 10}, // capped at maxOverlap
	}
	for _, tt := range tests {
		if got := suffixOverlap(tt.acc, tt.frag); got != tt.want {
			t.Errorf("suffixOverlap(%q, %q) = %d, want %d", tt.acc, tt.frag, got, tt.want)
		}
	}
}
