// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable_Aligned(t *testing.T) {
	got, err := RenderTable(
		[]string{"Name", "Qty"},
		[][]string{
			{"apples", "3"},
			{"pears"},
		},
	)
	require.NoError(t, err)

	want := strings.Join([]string{
		"| Name   | Qty |",
		"|--------|-----|",
		"| apples | 3   |",
		"| pears  |     |",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestRenderTable_EscapesCells(t *testing.T) {
	got, err := RenderTable([]string{"Col"}, [][]string{{"a|b\nc"}})
	require.NoError(t, err)
	assert.Contains(t, got, `a\|b c`)
}

func TestRenderTable_NoHeaders(t *testing.T) {
	_, err := RenderTable(nil, nil)
	assert.Error(t, err)
}

func TestCreateTableTool_Handler(t *testing.T) {
	tool := CreateTableTool()

	out, err := tool.Handler.Execute(context.Background(), map[string]any{
		"headers": []any{"A", "B"},
		"rows":    []any{[]any{"1", "2"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "| A | B |")

	_, err = tool.Handler.Execute(context.Background(), map[string]any{
		"headers": "not an array",
	})
	assert.Error(t, err)
}
