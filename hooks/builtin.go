package hooks

import (
	"context"
	"path"
	"strings"
)

// MidStreamUpdateSource supplies whatever cross-agent updates have
// accumulated while an agent was executing a tool. AgentRuntime.PendingUpdates
// implements this by draining its broadcast/answer-update queue.
type MidStreamUpdateSource interface {
	PendingUpdates(agentID string) []string
}

// MidStreamInjectionHook is a built-in PostToolUse hook that returns
// whatever cross-agent updates accumulated while the agent executed a
// tool, using StrategyToolResult.
type MidStreamInjectionHook struct {
	Source MidStreamUpdateSource
}

func (h *MidStreamInjectionHook) Name() string { return "mid_stream_injection" }

func (h *MidStreamInjectionHook) Execute(_ context.Context, event Event) (Result, error) {
	if h.Source == nil {
		return AllowResult(), nil
	}
	updates := h.Source.PendingUpdates(event.AgentID)
	if len(updates) == 0 {
		return AllowResult(), nil
	}
	res := AllowResult()
	res.Inject = []Injection{{
		Content:  strings.Join(updates, "\n"),
		Strategy: StrategyToolResult,
	}}
	return res, nil
}

// HighPriorityReminderText is the fixed reminder paragraph injected when a
// high-priority task is reported complete.
const HighPriorityReminderText = "Reminder: a high-priority task was just marked complete. " +
	"Double-check its output against the original requirements before moving on, " +
	"and flag anything that still needs follow-up."

// HighPriorityTaskReminderHook is a built-in PostToolUse hook matching
// tool names like "*update_task_status"/"*complete_task"; if the reported
// task has priority "high" and status "completed", it injects a fixed
// reminder with StrategyUserMessage.
type HighPriorityTaskReminderHook struct{}

func (h *HighPriorityTaskReminderHook) Name() string { return "high_priority_task_reminder" }

var taskToolPatterns = []string{"*update_task_status", "*complete_task"}

func (h *HighPriorityTaskReminderHook) Execute(_ context.Context, event Event) (Result, error) {
	matched := false
	for _, pattern := range taskToolPatterns {
		if ok, err := path.Match(pattern, event.ToolName); err == nil && ok {
			matched = true
			break
		}
	}
	if !matched {
		return AllowResult(), nil
	}

	priority, _ := event.ToolInput["priority"].(string)
	status, _ := event.ToolInput["status"].(string)
	if priority != "high" || status != "completed" {
		return AllowResult(), nil
	}

	res := AllowResult()
	res.Inject = []Injection{{
		Content:  HighPriorityReminderText,
		Strategy: StrategyUserMessage,
	}}
	return res, nil
}
