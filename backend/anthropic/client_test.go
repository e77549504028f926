package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/stream"
)

func TestNewFromAPIKey_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewFromAPIKey("", Options{Model: "claude-3-5-sonnet"})
	require.Error(t, err)
}

func TestNewFromAPIKey_RequiresModel(t *testing.T) {
	t.Parallel()

	_, err := NewFromAPIKey("sk-test", Options{})
	require.Error(t, err)
}

func TestNewFromAPIKey_AppliesDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewFromAPIKey("sk-test", Options{Model: "claude-3-5-sonnet"})
	require.NoError(t, err)
	require.Equal(t, 3, c.opts.MaxRetries)
	require.NotNil(t, c.opts.Compressor)
}

func TestEncodeMessages_SplitsSystemFromConversation(t *testing.T) {
	t.Parallel()

	msgs := []stream.Message{
		{Role: stream.RoleSystem, Content: "be helpful"},
		{Role: stream.RoleUser, Content: "hi"},
		{Role: stream.RoleAssistant, Content: "hello"},
	}
	out, system, err := encodeMessages(msgs)
	require.NoError(t, err)
	require.Len(t, system, 1)
	require.Equal(t, "be helpful", system[0].Text)
	require.Len(t, out, 2)
}

func TestEncodeMessages_AssistantToolCallsBecomeToolUseBlocks(t *testing.T) {
	t.Parallel()

	msgs := []stream.Message{
		{Role: stream.RoleAssistant, ToolCalls: []stream.ToolCall{
			{ID: "call-1", Name: "search", Arguments: `{"query":"weather"}`},
		}},
	}
	out, _, err := encodeMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestEncodeMessages_RejectsMalformedToolArguments(t *testing.T) {
	t.Parallel()

	msgs := []stream.Message{
		{Role: stream.RoleAssistant, ToolCalls: []stream.ToolCall{
			{ID: "call-1", Name: "search", Arguments: `not json`},
		}},
	}
	_, _, err := encodeMessages(msgs)
	require.Error(t, err)
}

func TestEncodeMessages_ToolResultBecomesUserMessage(t *testing.T) {
	t.Parallel()

	msgs := []stream.Message{
		{Role: stream.RoleTool, ToolCallID: "call-1", Content: `{"result":"ok"}`},
	}
	out, _, err := encodeMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestEncodeTools_CarriesSchemaAndDescription(t *testing.T) {
	t.Parallel()

	tools := []stream.ToolSpec{
		{Name: "search", Description: "search the web", Schema: map[string]any{"type": "object"}},
	}
	out, err := encodeTools(tools)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	require.Equal(t, "search", out[0].OfTool.Name)
}

func TestBuildParams_RequiresAtLeastOneMessage(t *testing.T) {
	t.Parallel()

	c := &Client{opts: Options{Model: "claude-3-5-sonnet", MaxTokens: 1024}}
	_, err := c.buildParams([]stream.Message{{Role: stream.RoleSystem, Content: "only system"}}, nil, stream.Params{})
	require.Error(t, err)
}

func TestBuildParams_FallsBackToDefaultMaxTokens(t *testing.T) {
	t.Parallel()

	c := &Client{opts: Options{Model: "claude-3-5-sonnet"}}
	body, err := c.buildParams([]stream.Message{{Role: stream.RoleUser, Content: "hi"}}, nil, stream.Params{})
	require.NoError(t, err)
	require.Equal(t, int64(4096), body.MaxTokens)
}

func TestBuildParams_ParamsTemperatureOverridesOptions(t *testing.T) {
	t.Parallel()

	withOverride := &Client{opts: Options{Model: "claude-3-5-sonnet", Temperature: 0.2}}
	temp := 0.9
	bodyOverride, err := withOverride.buildParams([]stream.Message{{Role: stream.RoleUser, Content: "hi"}}, nil, stream.Params{Temperature: &temp})
	require.NoError(t, err)

	withoutOverride := &Client{opts: Options{Model: "claude-3-5-sonnet", Temperature: 0.2}}
	bodyDefault, err := withoutOverride.buildParams([]stream.Message{{Role: stream.RoleUser, Content: "hi"}}, nil, stream.Params{})
	require.NoError(t, err)

	require.NotEqual(t, bodyDefault.Temperature, bodyOverride.Temperature)
}
