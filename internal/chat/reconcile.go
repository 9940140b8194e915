// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strings"

// =============================================================================
// CONTENT RECONCILER
// =============================================================================

// maxOverlap bounds how far back the overlap probe looks when deciding
// whether a shorter fragment is a truncated cumulative resend.
const maxOverlap = 10

// minOverlap is the smallest suffix/prefix overlap treated as evidence of a
// resend. Shorter overlaps (one or two characters) occur constantly between
// honest incremental fragments ("Hel" + "lo") and must not suppress them.
const minOverlap = 4

// Reconcile merges a newly received fragment into the accumulated text.
//
// The backend may report either the full text so far (cumulative) or only
// the newest fragment (incremental), and may switch between the two
// mid-stream. The merge never silently drops tokens and prefers avoiding
// duplication over completeness when the two goals conflict:
//
//  1. Fragment extends the accumulated text -> cumulative, replace.
//  2. Fragment is a prefix of the accumulated text, or its start overlaps
//     the accumulated tail -> cumulative resend, the longer side wins.
//  3. Anything else -> incremental, append.
//
// The result is the sole source of truth handed to the extractor; callers
// must never accumulate raw record deltas independently.
func Reconcile(acc, frag string) string {
	if frag == "" {
		return acc
	}
	if acc == "" {
		return frag
	}

	// Cumulative: fragment carries everything we already have, plus more.
	if len(frag) >= len(acc) && strings.HasPrefix(frag, acc) {
		return frag
	}

	if len(frag) < len(acc) {
		// Truncated cumulative resend: the fragment is a prefix of what we
		// already accumulated.
		if strings.HasPrefix(acc, frag) {
			return acc
		}
		// Overlap probe: does the fragment start with a meaningful suffix
		// of the accumulated text?
		if suffixOverlap(acc, frag) >= minOverlap {
			return acc
		}
		// Incremental fragment.
		return acc + frag
	}

	// Fragment is at least as long as the accumulated text but does not
	// start with it. A meaningful overlap between the accumulated tail and
	// the fragment start marks a resend, and the longer side wins. Without
	// that evidence this is an honest incremental fragment that happens to
	// outgrow the buffer (common on the first few deltas), so append.
	if suffixOverlap(acc, frag) >= minOverlap {
		if len(frag) > len(acc) {
			return frag
		}
		return acc
	}
	return acc + frag
}

// suffixOverlap returns the length of the longest suffix of acc (capped at
// maxOverlap) that is also a prefix of frag. Zero means no overlap.
func suffixOverlap(acc, frag string) int {
	limit := maxOverlap
	if len(acc) < limit {
		limit = len(acc)
	}
	if len(frag) < limit {
		limit = len(frag)
	}
	for k := limit; k > 0; k-- {
		if acc[len(acc)-k:] == frag[:k] {
			return k
		}
	}
	return 0
}
