// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"strings"
	"testing"
)

// chunkedReader feeds its parts one Read at a time, simulating records
// arriving split across network chunks.
type chunkedReader struct {
	parts []string
	idx   int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.idx >= len(c.parts) {
		return 0, io.EOF
	}
	n := copy(p, c.parts[c.idx])
	c.idx++
	return n, nil
}

func collectRecords(t *testing.T, r io.Reader) []StreamRecord {
	t.Helper()
	var recs []StreamRecord
	err := NewStreamReader(r).Process(context.Background(), func(rec StreamRecord) {
		recs = append(recs, rec)
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	return recs
}

func TestStreamReader_ParsesRecords(t *testing.T) {
	body := `{"model":"qwen3:8b","message":{"role":"assistant","content":"Hel"},"done":false}
{"message":{"role":"assistant","content":"lo"},"done":false}
{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":34}
`
	recs := collectRecords(t, strings.NewReader(body))

	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Content != "Hel" || recs[1].Content != "lo" {
		t.Errorf("contents = %q, %q", recs[0].Content, recs[1].Content)
	}
	if !recs[2].Done || recs[2].DoneReason != "stop" {
		t.Errorf("terminal record = %+v", recs[2])
	}
	if recs[2].PromptEvalCount != 12 || recs[2].EvalCount != 34 {
		t.Errorf("counts = %d/%d, want 12/34", recs[2].PromptEvalCount, recs[2].EvalCount)
	}
	// Model name carries over from the first record.
	if recs[1].Model != "qwen3:8b" {
		t.Errorf("Model = %q, want carried-over name", recs[1].Model)
	}
}

func TestStreamReader_PartialLinesAcrossChunks(t *testing.T) {
	r := &chunkedReader{parts: []string{
		`{"message":{"role":"assistant","con`,
		`tent":"split"},"done":false}` + "\n" + `{"message":{"role":"assis`,
		`tant","content":""},"done":true}` + "\n",
	}}
	recs := collectRecords(t, r)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Content != "split" {
		t.Errorf("Content = %q, want %q", recs[0].Content, "split")
	}
	if !recs[1].Done {
		t.Error("second record not done")
	}
}

func TestStreamReader_FinalLineWithoutNewline(t *testing.T) {
	body := `{"message":{"role":"assistant","content":"tail"},"done":true}`
	recs := collectRecords(t, strings.NewReader(body))

	if len(recs) != 1 || recs[0].Content != "tail" || !recs[0].Done {
		t.Errorf("records = %+v, want one done record with content %q", recs, "tail")
	}
}

func TestStreamReader_SkipsMalformedLines(t *testing.T) {
	body := `not json at all
{"message":{"role":"assistant","content":"ok"},"done":false}
{"message":{"role":"assistant","content":""},"done":true}
`
	recs := collectRecords(t, strings.NewReader(body))

	if len(recs) != 2 {
		t.Fatalf("got %d records, want malformed line skipped", len(recs))
	}
	if recs[0].Content != "ok" {
		t.Errorf("Content = %q, want %q", recs[0].Content, "ok")
	}
}

func TestStreamReader_SkipsBlankLines(t *testing.T) {
	body := "\n\n" + `{"message":{"role":"assistant","content":"a"},"done":true}` + "\n\n"
	recs := collectRecords(t, strings.NewReader(body))
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}
}

func TestStreamReader_ToolCallRecord(t *testing.T) {
	body := `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"web_search","arguments":{"query":"go releases"}}}]},"done":false}
{"message":{"role":"assistant","content":""},"done":true}
`
	recs := collectRecords(t, strings.NewReader(body))

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	calls := recs[0].ToolCalls
	if len(calls) != 1 || calls[0].Function.Name != "web_search" {
		t.Fatalf("tool calls = %+v, want one web_search", calls)
	}
	if q, _ := calls[0].Function.Arguments["query"].(string); q != "go releases" {
		t.Errorf("query = %q, want %q", q, "go releases")
	}
}

func TestStreamReader_StopsAfterDone(t *testing.T) {
	body := `{"message":{"role":"assistant","content":""},"done":true}
{"message":{"role":"assistant","content":"after"},"done":false}
`
	recs := collectRecords(t, strings.NewReader(body))
	if len(recs) != 1 {
		t.Errorf("got %d records, want processing to stop at done", len(recs))
	}
}

func TestStreamReader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamReader(strings.NewReader("{}\n")).Process(ctx, func(rec StreamRecord) {})
	if err != context.Canceled {
		t.Errorf("Process = %v, want context.Canceled", err)
	}
}
