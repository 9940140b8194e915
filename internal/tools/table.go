// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// MARKDOWN TABLE RENDERING
// =============================================================================

// RenderTable builds an aligned markdown table. Rows shorter than the
// header are padded with empty cells; longer rows are truncated.
func RenderTable(headers []string, rows [][]string) (string, error) {
	if len(headers) == 0 {
		return "", errors.New("table needs at least one header")
	}

	cols := len(headers)
	widths := make([]int, cols)
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}

	normalized := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, cols)
		for i := 0; i < cols; i++ {
			if i < len(row) {
				cells[i] = sanitizeCell(row[i])
			}
			if w := runewidth.StringWidth(cells[i]); w > widths[i] {
				widths[i] = w
			}
		}
		normalized = append(normalized, cells)
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i, cell := range cells {
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	headerCells := make([]string, cols)
	for i, h := range headers {
		headerCells[i] = sanitizeCell(h)
	}
	writeRow(headerCells)

	b.WriteString("|")
	for i := 0; i < cols; i++ {
		b.WriteString(strings.Repeat("-", widths[i]+2))
		b.WriteString("|")
	}
	b.WriteString("\n")

	for _, cells := range normalized {
		writeRow(cells)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// sanitizeCell keeps cell content on one line and out of the pipe syntax.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}

// =============================================================================
// TOOL BINDING
// =============================================================================

// CreateTableTool renders structured data as a markdown table.
func CreateTableTool() Tool {
	return Tool{
		Name:        "create_table",
		Description: "Render headers and rows as an aligned markdown table.",
		Schema: functionSchema("create_table",
			"Create a markdown table from headers and rows.",
			map[string]ToolProperty{
				"headers": {
					Type:        "array",
					Description: "Column headers",
					Items:       &ToolProperty{Type: "string"},
				},
				"rows": {
					Type:        "array",
					Description: "Table rows, each an array of cell strings",
					Items: &ToolProperty{
						Type:  "array",
						Items: &ToolProperty{Type: "string"},
					},
				},
			},
			[]string{"headers"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			headers, err := decodeStringSlice(args["headers"])
			if err != nil {
				return "", fmt.Errorf("create_table: headers: %w", err)
			}

			var rows [][]string
			if raw, ok := args["rows"]; ok && raw != nil {
				rows, err = decodeRowSlices(raw)
				if err != nil {
					return "", fmt.Errorf("create_table: rows: %w", err)
				}
			}

			return RenderTable(headers, rows)
		}),
	}
}

func decodeStringSlice(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.New("expected an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			s = fmt.Sprint(item)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeRowSlices(raw any) ([][]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.New("expected an array of row arrays")
	}
	out := make([][]string, 0, len(items))
	for i, item := range items {
		row, err := decodeStringSlice(item)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}
