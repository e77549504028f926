package hooks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/hooks"
)

type fakeUpdateSource struct {
	updates map[string][]string
}

func (f fakeUpdateSource) PendingUpdates(agentID string) []string {
	return f.updates[agentID]
}

func TestMidStreamInjectionHook_InjectsPendingUpdates(t *testing.T) {
	t.Parallel()

	h := &hooks.MidStreamInjectionHook{Source: fakeUpdateSource{updates: map[string][]string{
		"agent-a": {"new answer from agent-b", "vote cast by agent-c"},
	}}}

	res, err := h.Execute(context.Background(), hooks.Event{AgentID: "agent-a"})
	require.NoError(t, err)
	require.Len(t, res.Inject, 1)
	require.Equal(t, hooks.StrategyToolResult, res.Inject[0].Strategy)
	require.Contains(t, res.Inject[0].Content, "new answer from agent-b")
	require.Contains(t, res.Inject[0].Content, "vote cast by agent-c")
}

func TestMidStreamInjectionHook_NoUpdates(t *testing.T) {
	t.Parallel()

	h := &hooks.MidStreamInjectionHook{Source: fakeUpdateSource{updates: map[string][]string{}}}

	res, err := h.Execute(context.Background(), hooks.Event{AgentID: "agent-a"})
	require.NoError(t, err)
	require.Empty(t, res.Inject)
}

func TestMidStreamInjectionHook_NilSource(t *testing.T) {
	t.Parallel()

	h := &hooks.MidStreamInjectionHook{}
	res, err := h.Execute(context.Background(), hooks.Event{AgentID: "agent-a"})
	require.NoError(t, err)
	require.Equal(t, hooks.Allow, res.Decision)
}

func TestHighPriorityTaskReminderHook_Matches(t *testing.T) {
	t.Parallel()

	h := &hooks.HighPriorityTaskReminderHook{}
	res, err := h.Execute(context.Background(), hooks.Event{
		ToolName: "todo_update_task_status",
		ToolInput: map[string]any{
			"priority": "high",
			"status":   "completed",
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Inject, 1)
	require.Equal(t, hooks.StrategyUserMessage, res.Inject[0].Strategy)
	require.Equal(t, hooks.HighPriorityReminderText, res.Inject[0].Content)
}

func TestHighPriorityTaskReminderHook_IgnoresLowPriority(t *testing.T) {
	t.Parallel()

	h := &hooks.HighPriorityTaskReminderHook{}
	res, err := h.Execute(context.Background(), hooks.Event{
		ToolName:  "todo_complete_task",
		ToolInput: map[string]any{"priority": "low", "status": "completed"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Inject)
}

func TestHighPriorityTaskReminderHook_IgnoresUnmatchedTool(t *testing.T) {
	t.Parallel()

	h := &hooks.HighPriorityTaskReminderHook{}
	res, err := h.Execute(context.Background(), hooks.Event{
		ToolName:  "search",
		ToolInput: map[string]any{"priority": "high", "status": "completed"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Inject)
}

func TestHighPriorityTaskReminderHook_IgnoresIncompleteStatus(t *testing.T) {
	t.Parallel()

	h := &hooks.HighPriorityTaskReminderHook{}
	res, err := h.Execute(context.Background(), hooks.Event{
		ToolName:  "complete_task",
		ToolInput: map[string]any{"priority": "high", "status": "in_progress"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Inject)
}
