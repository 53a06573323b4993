package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/retrieval"
	"github.com/hupe1980/chatmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findTool(t *testing.T, tools []tool.Tool, name string) tool.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Name() == name {
			return tl
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestBuiltinTools(t *testing.T) {
	assert.Len(t, builtinTools(nil, 4), 1)

	searcher := retrieval.NewStatic(core.Document{ID: "d1", Content: "entropy of a system"})
	tools := builtinTools(searcher, 4)
	require.Len(t, tools, 2)

	out, err := findTool(t, tools, "current_time").Call(context.Background(), map[string]any{"timezone": "UTC"})
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, out.(string))
	require.NoError(t, err)

	_, err = findTool(t, tools, "current_time").Call(context.Background(), map[string]any{"timezone": "Mars/Olympus"})
	require.Error(t, err)

	out, err = findTool(t, tools, "search_documents").Call(context.Background(), map[string]any{"query": "entropy"})
	require.NoError(t, err)
	assert.Contains(t, toJSON(t, out), `"id":"d1"`)

	_, err = findTool(t, tools, "search_documents").Call(context.Background(), map[string]any{})
	require.Error(t, err)
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
