package toolschema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
	"github.com/massgen-ai/massgen/toolschema"
)

func TestCheckCollisions_Clean(t *testing.T) {
	t.Parallel()

	err := toolschema.CheckCollisions([]stream.ToolSpec{{Name: "search"}, {Name: "read_file"}})
	require.NoError(t, err)
}

func TestCheckCollisions_Rejects(t *testing.T) {
	t.Parallel()

	err := toolschema.CheckCollisions([]stream.ToolSpec{{Name: "vote"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, massgenerr.ErrConfiguration))
}

func TestValidator_AcceptsEmptySchema(t *testing.T) {
	t.Parallel()

	v := toolschema.NewValidator()
	err := v.Validate(stream.ToolSpec{Name: "noop"}, stream.ToolCall{Name: "noop", Arguments: `{"anything":1}`})
	require.NoError(t, err)
}

func TestValidator_EnforcesSchema(t *testing.T) {
	t.Parallel()

	tool := stream.ToolSpec{
		Name: "search",
		Schema: map[string]any{
			"type":                 "object",
			"required":             []any{"query"},
			"additionalProperties": false,
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
	v := toolschema.NewValidator()

	err := v.Validate(tool, stream.ToolCall{Name: "search", Arguments: `{"query":"hello"}`})
	require.NoError(t, err)

	err = v.Validate(tool, stream.ToolCall{Name: "search", Arguments: `{}`})
	require.Error(t, err)
}

func TestValidator_RejectsMalformedArguments(t *testing.T) {
	t.Parallel()

	tool := stream.ToolSpec{Name: "search", Schema: map[string]any{"type": "object"}}
	v := toolschema.NewValidator()

	err := v.Validate(tool, stream.ToolCall{Name: "search", Arguments: `not json`})
	require.Error(t, err)
}

func TestValidator_CachesCompiledSchema(t *testing.T) {
	t.Parallel()

	tool := stream.ToolSpec{Name: "search", Schema: map[string]any{"type": "object"}}
	v := toolschema.NewValidator()

	for i := 0; i < 3; i++ {
		require.NoError(t, v.Validate(tool, stream.ToolCall{Name: "search", Arguments: `{}`}))
	}
}
