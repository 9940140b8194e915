// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// streamLine is the wire shape of one newline-delimited JSON record from
// /api/chat with stream:true.
type streamLine struct {
	Model   string `json:"model"`
	Message struct {
		Role      string     `json:"role"`
		Content   string     `json:"content"`
		Thinking  string     `json:"thinking,omitempty"`
		ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	EvalDuration    int64  `json:"eval_duration,omitempty"`
}

// StreamReader splits a streaming response body into newline-delimited JSON
// records. An incomplete trailing line is held in pending and prefixed to
// the next chunk; at end-of-stream the remainder gets one final parse
// attempt.
type StreamReader struct {
	reader  io.Reader
	pending []byte
	scratch []byte
	eof     bool
	model   string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader:  r,
		scratch: make([]byte, 4096),
	}
}

// Process reads the stream and calls the callback for each parsed record.
// Blocks until the stream is complete or the context is cancelled. The
// context is checked before every read so cancellation is observed at
// read-loop boundaries.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.nextLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if line == nil {
			// Stream drained with nothing left to parse.
			return nil
		}

		rec, ok := s.parseLine(line)
		if !ok {
			// Malformed lines are protocol noise, not fatal.
			continue
		}

		callback(*rec)
		if rec.Done {
			return nil
		}
	}
}

// nextLine returns the next newline-terminated line, reading more chunks as
// needed. At EOF any buffered remainder is returned once as a final line;
// after that, (nil, io.EOF).
func (s *StreamReader) nextLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := s.pending[:i]
			s.pending = s.pending[i+1:]
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			return line, nil
		}

		if s.eof {
			if len(bytes.TrimSpace(s.pending)) == 0 {
				return nil, io.EOF
			}
			rest := s.pending
			s.pending = nil
			return rest, nil
		}

		n, err := s.reader.Read(s.scratch)
		if n > 0 {
			s.pending = append(s.pending, s.scratch[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				s.eof = true
				continue
			}
			return nil, err
		}
	}
}

// parseLine unmarshals one line into a StreamRecord. Returns ok=false for
// lines that are not valid JSON records.
func (s *StreamReader) parseLine(line []byte) (*StreamRecord, bool) {
	var raw streamLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, false
	}

	if raw.Model != "" {
		s.model = raw.Model
	}

	rec := &StreamRecord{
		Content:    raw.Message.Content,
		Thinking:   raw.Message.Thinking,
		ToolCalls:  raw.Message.ToolCalls,
		Done:       raw.Done,
		DoneReason: raw.DoneReason,
		Model:      s.model,
	}

	if raw.Done {
		rec.PromptEvalCount = raw.PromptEvalCount
		rec.EvalCount = raw.EvalCount
		rec.TotalDuration = time.Duration(raw.TotalDuration)
		rec.EvalDuration = time.Duration(raw.EvalDuration)
	}

	return rec, true
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds timing statistics collected during streaming.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	PromptTokens     int
	CompletionTokens int

	TTFT            time.Duration // time to first token
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes final statistics from the terminal record.
func (s *StreamStats) Finalize(rec StreamRecord) {
	s.EndTime = time.Now()
	s.PromptTokens = rec.PromptEvalCount
	s.CompletionTokens = rec.EvalCount

	if rec.EvalDuration > 0 {
		s.TokensPerSecond = float64(rec.EvalCount) / rec.EvalDuration.Seconds()
	}
}
