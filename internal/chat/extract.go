// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	// Candidate positions for inline JSON tool calls. The cheap regex only
	// locates starting braces; real matching is done by the balanced-brace
	// scanner plus a JSON parse.
	toolCallStartRegex = regexp.MustCompile(`\{\s*"name"\s*:`)

	// Two or more consecutive blank lines collapse to exactly one.
	blankRunRegex = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

	// A trailing HTML tag; trailing-punctuation cleanup must not mangle
	// generated markup.
	htmlTailRegex = regexp.MustCompile(`</?[A-Za-z][^<>]*>[ \t\n]*$`)

	// Dangling punctuation left behind where a trailing tool marker was
	// removed.
	trailingPunctRegex = regexp.MustCompile(`[.!?,\s]+$`)
)

// =============================================================================
// THINKING TAGS
// =============================================================================

// thinkingTag describes one recognized chain-of-thought tag pair.
type thinkingTag struct {
	open   string
	closes []string
}

// thinkingTags lists the recognized tag pairs. The first close entry is the
// canonical one; extra entries are known backend quirks (some builds close
// <think> with </redacted_reasoning>).
var thinkingTags = []thinkingTag{
	{open: "<think>", closes: []string{"</think>", "</redacted_reasoning>"}},
	{open: "<reasoning>", closes: []string{"</reasoning>"}},
	{open: "<thought>", closes: []string{"</thought>"}},
	{open: "<internal>", closes: []string{"</internal>"}},
}

// =============================================================================
// EXTRACTION RESULT
// =============================================================================

// Extraction is the result of separating accumulated stream text into
// user-visible content, thinking text, and structured tool calls.
type Extraction struct {
	// Visible is the user-facing answer text with thinking spans and tool
	// markers removed.
	Visible string

	// Thinking is the concatenated chain-of-thought text, blank-line
	// separated when the model produced several spans.
	Thinking string

	// ThinkingOpen is true while a thinking tag is open but not yet
	// closed in the accumulated text.
	ThinkingOpen bool

	// ToolCalls are the detected calls in order of appearance, each with a
	// freshly generated ID.
	ToolCalls []model.ToolCall
}

// Extract separates accumulated stream text into visible content, thinking
// text, and tool calls. It is safe to call repeatedly on a growing buffer;
// every call scans from scratch, so results are stable for stable input.
func Extract(text string) Extraction {
	visible, thinking, open := extractThinking(text)

	spans, calls := scanToolCalls(visible)
	visible = removeToolSpans(visible, spans)
	visible = strings.TrimRight(visible, " \t\n")

	// Dangling-punctuation cleanup only applies when tool markers were
	// actually removed; an ordinary answer keeps its final period.
	if len(calls) > 0 {
		visible = trimTrailingPunct(visible)
	}

	return Extraction{
		Visible:      visible,
		Thinking:     thinking,
		ThinkingOpen: open,
		ToolCalls:    calls,
	}
}

// =============================================================================
// THINKING EXTRACTION
// =============================================================================

// extractThinking strips thinking tag spans from text. The tag type whose
// open tag appears first wins; multiple spans of the winning type are
// concatenated with blank-line separators. An open tag with no close marks
// the "currently thinking" state: everything after it is tentatively
// thinking, not content.
func extractThinking(text string) (visible, thinking string, open bool) {
	tag, first := winningTag(text)
	if first < 0 {
		return text, "", false
	}

	var parts []string
	var b strings.Builder
	pos := 0
	for {
		idx := strings.Index(text[pos:], tag.open)
		if idx < 0 {
			b.WriteString(text[pos:])
			break
		}
		start := pos + idx
		b.WriteString(text[pos:start])

		inner := start + len(tag.open)
		closeAt, closeLen := earliestClose(text, inner, tag.closes)
		if closeAt < 0 {
			// Unclosed tag: the rest of the buffer is tentative thinking.
			parts = append(parts, strings.TrimSpace(text[inner:]))
			open = true
			pos = len(text)
			break
		}

		parts = append(parts, strings.TrimSpace(text[inner:closeAt]))
		pos = closeAt + closeLen
	}

	visible = strings.TrimRight(b.String(), " \t\n")
	thinking = strings.Join(nonEmpty(parts), "\n\n")
	return visible, thinking, open
}

// winningTag returns the tag type with the earliest open-tag occurrence.
func winningTag(text string) (thinkingTag, int) {
	best := -1
	var winner thinkingTag
	for _, tag := range thinkingTags {
		if idx := strings.Index(text, tag.open); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			winner = tag
		}
	}
	return winner, best
}

// earliestClose finds the first of the accepted closing tags at or after
// from. Returns (-1, 0) when none is present.
func earliestClose(text string, from int, closes []string) (at, length int) {
	at = -1
	for _, c := range closes {
		if idx := strings.Index(text[from:], c); idx >= 0 {
			abs := from + idx
			if at < 0 || abs < at {
				at = abs
				length = len(c)
			}
		}
	}
	return at, length
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// TOOL CALL SCANNING
// =============================================================================

// KnownTools is the allowlist of tool names the extractor validates
// arguments for. Unrecognized names still match through the generic
// fallback; the executor decides whether they exist.
var KnownTools = map[string]bool{
	"web_search":     true,
	"fetch_url":      true,
	"create_table":   true,
	"read_file":      true,
	"write_file":     true,
	"list_files":     true,
	"delete_file":    true,
	"file_exists":    true,
	"search_replace": true,
}

// toolSpan is one detected tool-call region in the visible text.
type toolSpan struct {
	start, end int
	call       model.ToolCall
}

// scanToolCalls finds both tool-call surface syntaxes in text and returns
// their spans in order of appearance:
//
//	(a) an inline JSON object literal {"name": ..., "arguments": {...}}
//	(b) the backend-native tagged form <tool_call>{...}</tool_call>
func scanToolCalls(text string) ([]toolSpan, []model.ToolCall) {
	spans := scanNativeToolTags(text)

	// Blank out native spans so the inline scan cannot re-match the JSON
	// inside them; indices stay aligned.
	masked := maskSpans(text, spans)
	spans = append(spans, scanInlineJSONCalls(masked)...)

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	calls := make([]model.ToolCall, 0, len(spans))
	for _, sp := range spans {
		calls = append(calls, sp.call)
	}
	return spans, calls
}

const (
	toolTagOpen  = "<tool_call>"
	toolTagClose = "</tool_call>"
)

// scanNativeToolTags matches <tool_call>{...}</tool_call> regions. The
// payload is a JSON object with name and arguments fields; arguments may be
// a JSON string or an object and is normalized to a string either way.
func scanNativeToolTags(text string) []toolSpan {
	var spans []toolSpan
	pos := 0
	for {
		idx := strings.Index(text[pos:], toolTagOpen)
		if idx < 0 {
			return spans
		}
		start := pos + idx
		inner := start + len(toolTagOpen)

		closeIdx := strings.Index(text[inner:], toolTagClose)
		if closeIdx < 0 {
			// Tag still streaming in; leave it for a later scan.
			return spans
		}
		end := inner + closeIdx + len(toolTagClose)
		payload := strings.TrimSpace(text[inner : inner+closeIdx])

		var raw struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(payload), &raw); err == nil && raw.Name != "" {
			args, argsMap := normalizeArguments(raw.Arguments)
			if acceptToolCall(raw.Name, argsMap) {
				spans = append(spans, toolSpan{
					start: start,
					end:   end,
					call: model.ToolCall{
						ID:        uuid.NewString(),
						Name:      raw.Name,
						Arguments: args,
					},
				})
			}
		}
		pos = end
	}
}

// scanInlineJSONCalls matches bare {"name": ..., "arguments": {...}} object
// literals anywhere in text using a balanced-brace scan plus a JSON parse.
func scanInlineJSONCalls(text string) []toolSpan {
	var spans []toolSpan
	next := 0
	for _, loc := range toolCallStartRegex.FindAllStringIndex(text, -1) {
		start := loc[0]
		if start < next {
			continue // inside a previously matched object
		}
		end, ok := matchObject(text, start)
		if !ok {
			continue
		}

		var raw struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(text[start:end]), &raw); err != nil {
			continue
		}
		if raw.Name == "" || len(raw.Arguments) == 0 {
			continue
		}
		args, argsMap := normalizeArguments(raw.Arguments)
		if !acceptToolCall(raw.Name, argsMap) {
			continue
		}

		spans = append(spans, toolSpan{
			start: start,
			end:   end,
			call: model.ToolCall{
				ID:        uuid.NewString(),
				Name:      raw.Name,
				Arguments: args,
			},
		})
		next = end
	}
	return spans
}

// matchObject scans a balanced JSON object starting at the opening brace,
// respecting string literals and escapes. Returns the index one past the
// closing brace.
func matchObject(s string, start int) (int, bool) {
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// normalizeArguments turns the raw arguments field into its canonical
// string form plus, when possible, a decoded map for validation. Arguments
// arrive as either a JSON object or a JSON string holding an object.
func normalizeArguments(raw json.RawMessage) (string, map[string]any) {
	if len(raw) == 0 {
		return "{}", nil
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return string(raw), asMap
	}

	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		if err := json.Unmarshal([]byte(asStr), &asMap); err == nil {
			return asStr, asMap
		}
		return asStr, nil
	}

	return string(raw), nil
}

// acceptToolCall decides whether a candidate call is recognized. Allowlisted
// tools must pass per-tool argument validation; a failed validation means
// the candidate is ordinary text, not an error. Unknown names pass through
// the generic fallback so the executor can reject them loudly.
func acceptToolCall(name string, args map[string]any) bool {
	if !KnownTools[name] {
		return args != nil
	}

	switch name {
	case "web_search":
		return nonEmptyString(args, "query")
	case "fetch_url":
		return nonEmptyString(args, "url")
	case "write_file":
		return nonEmptyString(args, "path") && hasKey(args, "content")
	case "read_file", "delete_file", "file_exists":
		return nonEmptyString(args, "path")
	case "search_replace":
		return nonEmptyString(args, "path") && isArray(args, "replacements")
	case "create_table":
		return isArray(args, "headers") && arrayWhenPresent(args, "rows")
	case "list_files":
		return true
	}
	return false
}

func nonEmptyString(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	s, ok := args[key].(string)
	return ok && strings.TrimSpace(s) != ""
}

func hasKey(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	_, ok := args[key]
	return ok
}

func isArray(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	_, ok := args[key].([]any)
	return ok
}

// arrayWhenPresent accepts a missing key but rejects a non-array value.
func arrayWhenPresent(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return true
	}
	_, isArr := v.([]any)
	return isArr
}

// maskSpans replaces span regions with spaces so follow-up scans cannot
// re-match inside them while keeping every index aligned with the original.
func maskSpans(text string, spans []toolSpan) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, sp := range spans {
		for i := sp.start; i < sp.end; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// =============================================================================
// SPAN REMOVAL
// =============================================================================

// removeToolSpans removes the detected spans from the visible text,
// reconciling whitespace so a marker cut out mid-sentence does not merge
// two words or leave doubled spaces, and collapsing runs of blank lines.
//
// Safety check: if the spliced result no longer begins with the original
// leading content, fall back to a conservative pass that removes only
// matches fully bounded by whitespace or buffer edges.
func removeToolSpans(text string, spans []toolSpan) string {
	if len(spans) == 0 {
		return text
	}

	cleaned := spliceSpans(text, spans)

	if lead := leadingWord(text, spans); lead != "" {
		trimmed := strings.TrimLeft(cleaned, " \t\n")
		if !strings.HasPrefix(trimmed, lead) {
			cleaned = conservativeSplice(text, spans)
		}
	}

	return collapseBlankLines(cleaned)
}

// spliceSpans cuts every span and rejoins the remaining pieces with seam
// whitespace reconciliation.
func spliceSpans(text string, spans []toolSpan) string {
	pieces := make([]string, 0, len(spans)+1)
	prev := 0
	for _, sp := range spans {
		pieces = append(pieces, text[prev:sp.start])
		prev = sp.end
	}
	pieces = append(pieces, text[prev:])

	out := pieces[0]
	for _, piece := range pieces[1:] {
		out = joinAroundCut(out, piece)
	}
	return out
}

// joinAroundCut joins the text on either side of a removed span. Horizontal
// whitespace at the seam collapses to a single space unless a newline
// already separates the sides.
func joinAroundCut(left, right string) string {
	l := strings.TrimRight(left, " \t")
	r := strings.TrimLeft(right, " \t")
	if l == "" {
		return r
	}
	if r == "" {
		return l
	}
	if strings.HasSuffix(l, "\n") || strings.HasPrefix(r, "\n") {
		return l + r
	}
	return l + " " + r
}

// conservativeSplice removes only spans whose boundaries sit on whitespace
// or buffer edges, so legitimate adjoining content can never be truncated.
func conservativeSplice(text string, spans []toolSpan) string {
	out := text
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		beforeOK := sp.start == 0 || isSpaceByte(text[sp.start-1])
		afterOK := sp.end == len(text) || isSpaceByte(text[sp.end])
		if beforeOK && afterOK {
			out = out[:sp.start] + out[sp.end:]
		}
	}
	return out
}

// leadingWord returns the first whitespace-delimited word of the text that
// precedes the first span, or "" when a span starts the buffer.
func leadingWord(text string, spans []toolSpan) string {
	lead := text[:spans[0].start]
	fields := strings.Fields(lead)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// collapseBlankLines reduces 2+ consecutive blank lines to exactly one.
func collapseBlankLines(s string) string {
	return blankRunRegex.ReplaceAllString(s, "\n\n")
}

// trimTrailingPunct trims a trailing run of sentence punctuation and
// whitespace, unless the text ends in an HTML tag.
func trimTrailingPunct(s string) string {
	if htmlTailRegex.MatchString(s) {
		return strings.TrimRight(s, " \t\n")
	}
	return trailingPunctRegex.ReplaceAllString(s, "")
}
