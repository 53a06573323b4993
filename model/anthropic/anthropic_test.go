package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesPlacesToolResultsInUserMessage(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{Role: core.RoleSystem, Content: "ignored here"},
		{Role: core.RoleUser, Content: "weather in Paris?"},
		{Role: core.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "t1", Name: "weather", Arguments: json.RawMessage(`{"city":"Paris"}`)},
			{ID: "t2", Name: "time", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: model.RoleTool, ToolCallID: "t1", Content: "sunny"},
		{Role: model.RoleTool, ToolCallID: "t2", Content: "noon"},
		{Role: core.RoleAssistant, Content: "Sunny at noon."},
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.NotNil(t, msgs[1].Content[0].OfToolUse)

	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "t1", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "t2", msgs[2].Content[1].OfToolResult.ToolUseID)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[3].Role)
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "be brief",
		Messages:     []model.Message{{Role: core.RoleSystem, Content: "context"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "be brief", blocks[0].Text)
	assert.Equal(t, "context", blocks[1].Text)
}
