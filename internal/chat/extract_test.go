// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
)

// =============================================================================
// THINKING EXTRACTION TESTS
// =============================================================================

func TestExtract_ThinkingSinglePair(t *testing.T) {
	ext := Extract("<think>pondering the answer</think>The answer is 42.")

	if ext.Thinking != "pondering the answer" {
		t.Errorf("Thinking = %q, want %q", ext.Thinking, "pondering the answer")
	}
	if ext.Visible != "The answer is 42." {
		t.Errorf("Visible = %q, want %q", ext.Visible, "The answer is 42.")
	}
	if ext.ThinkingOpen {
		t.Error("ThinkingOpen = true for a closed tag pair")
	}
}

func TestExtract_ThinkingUnclosed(t *testing.T) {
	ext := Extract("Intro. <think>still going")

	if !ext.ThinkingOpen {
		t.Error("ThinkingOpen = false for an unclosed tag")
	}
	if ext.Thinking != "still going" {
		t.Errorf("Thinking = %q, want %q", ext.Thinking, "still going")
	}
	if ext.Visible != "Intro." {
		t.Errorf("Visible = %q, want %q", ext.Visible, "Intro.")
	}
}

func TestExtract_ThinkingMismatchedClose(t *testing.T) {
	// Known backend quirk: <think> closed with </redacted_reasoning>.
	ext := Extract("<think>hidden</redacted_reasoning>Visible part.")

	if ext.Thinking != "hidden" {
		t.Errorf("Thinking = %q, want %q", ext.Thinking, "hidden")
	}
	if ext.Visible != "Visible part." {
		t.Errorf("Visible = %q, want %q", ext.Visible, "Visible part.")
	}
	if ext.ThinkingOpen {
		t.Error("ThinkingOpen = true after a tolerated mismatched close")
	}
}

func TestExtract_ThinkingMultipleSpansJoined(t *testing.T) {
	ext := Extract("<reasoning>first</reasoning>middle<reasoning>second</reasoning>end")

	if ext.Thinking != "first\n\nsecond" {
		t.Errorf("Thinking = %q, want %q", ext.Thinking, "first\n\nsecond")
	}
	if ext.Visible != "middleend" {
		t.Errorf("Visible = %q, want %q", ext.Visible, "middleend")
	}
}

func TestExtract_ThinkingFirstTagTypeWins(t *testing.T) {
	ext := Extract("<thought>a</thought> text <internal>b</internal>")

	if ext.Thinking != "a" {
		t.Errorf("Thinking = %q, want %q (first tag type wins)", ext.Thinking, "a")
	}
	if !strings.Contains(ext.Visible, "<internal>b</internal>") {
		t.Errorf("Visible = %q, want the losing tag type left in place", ext.Visible)
	}
}

func TestExtract_NoTagsPassthrough(t *testing.T) {
	ext := Extract("Just a plain answer.")

	if ext.Visible != "Just a plain answer." {
		t.Errorf("Visible = %q, want unchanged input", ext.Visible)
	}
	if ext.Thinking != "" || ext.ThinkingOpen || len(ext.ToolCalls) != 0 {
		t.Errorf("Plain text produced thinking=%q open=%v calls=%d", ext.Thinking, ext.ThinkingOpen, len(ext.ToolCalls))
	}
}

// =============================================================================
// TOOL CALL EXTRACTION TESTS
// =============================================================================

func TestExtract_InlineWebSearch(t *testing.T) {
	ext := Extract(`{"name":"web_search","arguments":{"query":"weather"}}`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(ext.ToolCalls))
	}
	call := ext.ToolCalls[0]
	if call.Name != "web_search" {
		t.Errorf("Name = %q, want web_search", call.Name)
	}
	if call.ID == "" {
		t.Error("Call ID not generated")
	}
	if !strings.Contains(call.Arguments, `"weather"`) {
		t.Errorf("Arguments = %q, want the query payload", call.Arguments)
	}
	if ext.Visible != "" {
		t.Errorf("Visible = %q, want empty after marker removal", ext.Visible)
	}
}

func TestExtract_WebSearchEmptyQueryRejected(t *testing.T) {
	ext := Extract(`{"name":"web_search","arguments":{"query":""}}`)

	if len(ext.ToolCalls) != 0 {
		t.Fatalf("ToolCalls = %d, want 0 for an empty query", len(ext.ToolCalls))
	}
	// Rejected candidates are ordinary text, not errors.
	if !strings.Contains(ext.Visible, "web_search") {
		t.Errorf("Visible = %q, want rejected candidate left as text", ext.Visible)
	}
}

func TestExtract_MarkerRemovalMidSentence(t *testing.T) {
	ext := Extract(`Before {"name":"web_search","arguments":{"query":"x"}} After`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(ext.ToolCalls))
	}
	if ext.Visible != "Before After" {
		t.Errorf("Visible = %q, want %q", ext.Visible, "Before After")
	}
}

func TestExtract_NativeToolTag(t *testing.T) {
	ext := Extract(`Searching now. <tool_call>{"name":"fetch_url","arguments":{"url":"https://example.com"}}</tool_call>`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(ext.ToolCalls))
	}
	if ext.ToolCalls[0].Name != "fetch_url" {
		t.Errorf("Name = %q, want fetch_url", ext.ToolCalls[0].Name)
	}
	if strings.Contains(ext.Visible, "tool_call") {
		t.Errorf("Visible = %q, want the tagged span removed", ext.Visible)
	}
}

func TestExtract_NativeToolTagStringArguments(t *testing.T) {
	// Arguments arrive as a JSON string holding an object; normalized to
	// the inner string.
	ext := Extract(`<tool_call>{"name":"web_search","arguments":"{\"query\":\"go\"}"}</tool_call>`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(ext.ToolCalls))
	}
	if ext.ToolCalls[0].Arguments != `{"query":"go"}` {
		t.Errorf("Arguments = %q, want normalized object string", ext.ToolCalls[0].Arguments)
	}
}

func TestExtract_BothSyntaxesInOrder(t *testing.T) {
	text := `{"name":"read_file","arguments":{"path":"a.txt"}} then <tool_call>{"name":"list_files","arguments":{}}</tool_call>`
	ext := Extract(text)

	if len(ext.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %d, want 2", len(ext.ToolCalls))
	}
	if ext.ToolCalls[0].Name != "read_file" || ext.ToolCalls[1].Name != "list_files" {
		t.Errorf("Order = [%s, %s], want [read_file, list_files]",
			ext.ToolCalls[0].Name, ext.ToolCalls[1].Name)
	}
}

func TestExtract_UnknownToolGenericFallback(t *testing.T) {
	ext := Extract(`{"name":"summon_demon","arguments":{"circle":"salt"}}`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1 (generic fallback)", len(ext.ToolCalls))
	}
	if ext.ToolCalls[0].Name != "summon_demon" {
		t.Errorf("Name = %q, want summon_demon", ext.ToolCalls[0].Name)
	}
}

func TestExtract_ValidationPerTool(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"write_file missing content", `{"name":"write_file","arguments":{"path":"a.txt"}}`, 0},
		{"write_file complete", `{"name":"write_file","arguments":{"path":"a.txt","content":""}}`, 1},
		{"search_replace needs array", `{"name":"search_replace","arguments":{"path":"a.txt","replacements":"x"}}`, 0},
		{"search_replace complete", `{"name":"search_replace","arguments":{"path":"a.txt","replacements":[]}}`, 1},
		{"fetch_url missing url", `{"name":"fetch_url","arguments":{}}`, 0},
		{"delete_file needs path", `{"name":"delete_file","arguments":{"path":"a.txt"}}`, 1},
		{"create_table needs headers", `{"name":"create_table","arguments":{"headers":["a"],"rows":[]}}`, 1},
		{"create_table rows optional", `{"name":"create_table","arguments":{"headers":["a"]}}`, 1},
		{"create_table rows must be array", `{"name":"create_table","arguments":{"headers":["a"],"rows":"x"}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := Extract(tt.text)
			if len(ext.ToolCalls) != tt.want {
				t.Errorf("ToolCalls = %d, want %d", len(ext.ToolCalls), tt.want)
			}
		})
	}
}

func TestExtract_IncompleteJSONLeftAlone(t *testing.T) {
	// Mid-stream: the object has not finished arriving.
	ext := Extract(`{"name":"web_search","arguments":{"query":"wea`)

	if len(ext.ToolCalls) != 0 {
		t.Errorf("ToolCalls = %d, want 0 for an unbalanced object", len(ext.ToolCalls))
	}
}

func TestExtract_TrailingPunctAfterToolRemoval(t *testing.T) {
	ext := Extract(`I will search. {"name":"web_search","arguments":{"query":"x"}}.`)

	if len(ext.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(ext.ToolCalls))
	}
	if strings.HasSuffix(ext.Visible, ".") || strings.HasSuffix(ext.Visible, ",") {
		t.Errorf("Visible = %q, want trailing punctuation trimmed", ext.Visible)
	}
}

func TestExtract_NoTrailingTrimWithoutToolCalls(t *testing.T) {
	ext := Extract("A normal sentence.")

	if ext.Visible != "A normal sentence." {
		t.Errorf("Visible = %q, want final period kept", ext.Visible)
	}
}

func TestTrimTrailingPunct_HTMLTagGuard(t *testing.T) {
	got := trimTrailingPunct("see the table below <table><tr><td>x</td></tr></table>")
	if !strings.HasSuffix(got, "</table>") {
		t.Errorf("Result = %q, want trailing HTML tag preserved", got)
	}
}

func TestCollapseBlankLines(t *testing.T) {
	got := collapseBlankLines("a\n\n\n\nb\n\nc")
	if got != "a\n\nb\n\nc" {
		t.Errorf("collapseBlankLines = %q, want %q", got, "a\n\nb\n\nc")
	}
}

func TestMatchObject_RespectsStrings(t *testing.T) {
	s := `{"name":"write_file","arguments":{"path":"a","content":"has } brace and \" quote"}} tail`
	end, ok := matchObject(s, 0)
	if !ok {
		t.Fatal("matchObject failed on braces inside string literals")
	}
	if s[end-1] != '}' || strings.HasPrefix(s[end:], "}") {
		t.Errorf("matchObject end = %d, stopped at the wrong brace", end)
	}
}
