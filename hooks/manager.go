package hooks

import (
	"context"
	"fmt"
	"sync"
)

// Manager registers and runs hooks at two scopes: global hooks apply to
// every tool call of every agent; per-agent hooks apply additionally to
// one agent's tool calls and always run after global hooks.
type Manager struct {
	mu sync.RWMutex

	global   map[Type][]Hook
	perAgent map[string]map[Type][]Hook
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		global:   make(map[Type][]Hook),
		perAgent: make(map[string]map[Type][]Hook),
	}
}

// RegisterGlobal adds a hook that runs for every agent's tool calls.
func (m *Manager) RegisterGlobal(t Type, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[t] = append(m.global[t], h)
}

// RegisterForAgent adds a hook that runs only for agentID's tool calls,
// after the global hooks for the same Type.
func (m *Manager) RegisterForAgent(agentID string, t Type, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perAgent[agentID] == nil {
		m.perAgent[agentID] = make(map[Type][]Hook)
	}
	m.perAgent[agentID][t] = append(m.perAgent[agentID][t], h)
}

func (m *Manager) hooksFor(agentID string, t Type) []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Hook(nil), m.global[t]...)
	if perAgent, ok := m.perAgent[agentID]; ok {
		out = append(out, perAgent[t]...)
	}
	return out
}

// RunPreToolUse executes every PreToolUse hook registered for event's
// agent (global hooks first, then per-agent), threading UpdatedInput
// through the chain so later hooks see earlier hooks' modifications. Deny
// takes precedence over Ask, which takes precedence over Allow. Any hook
// that errors or panics is caught and treated as Allow with no
// contribution; the failure is recorded in the aggregate
// Result.HookErrors (fail-open policy).
func (m *Manager) RunPreToolUse(ctx context.Context, event Event) Result {
	agg := AllowResult()
	input := event.ToolInput

	for _, h := range m.hooksFor(event.AgentID, PreToolUse) {
		evt := event
		evt.ToolInput = input
		res := m.safeExecute(ctx, h, evt, &agg)

		if res.UpdatedInput != nil {
			input = res.UpdatedInput
		}
		agg = mergeDecision(agg, res)
	}

	agg.UpdatedInput = input
	return agg
}

// RunPostToolUse executes every PostToolUse hook registered for event's
// agent (global hooks first, then per-agent) and aggregates their
// injections, concatenating contents grouped by strategy and preserving
// registration order within each group.
func (m *Manager) RunPostToolUse(ctx context.Context, event Event) Result {
	agg := AllowResult()

	var toolResultParts, userMessageParts []string

	for _, h := range m.hooksFor(event.AgentID, PostToolUse) {
		res := m.safeExecute(ctx, h, event, &agg)
		for _, inj := range res.Inject {
			switch inj.Strategy {
			case StrategyToolResult:
				toolResultParts = append(toolResultParts, inj.Content)
			case StrategyUserMessage:
				userMessageParts = append(userMessageParts, inj.Content)
			}
		}
	}

	if len(toolResultParts) > 0 {
		agg.Inject = append(agg.Inject, Injection{
			Content:  joinParts(toolResultParts),
			Strategy: StrategyToolResult,
		})
	}
	if len(userMessageParts) > 0 {
		agg.Inject = append(agg.Inject, Injection{
			Content:  joinParts(userMessageParts),
			Strategy: StrategyUserMessage,
		})
	}
	return agg
}

// safeExecute runs a single hook, recovering from panics and appending
// any error to agg.HookErrors. It always returns a usable Result.
func (m *Manager) safeExecute(ctx context.Context, h Hook, event Event, agg *Result) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			agg.HookErrors = append(agg.HookErrors, fmt.Sprintf("hook %q panicked: %v", h.Name(), r))
			result = AllowResult()
		}
	}()

	res, err := h.Execute(ctx, event)
	if err != nil {
		agg.HookErrors = append(agg.HookErrors, fmt.Sprintf("hook %q: %v", h.Name(), err))
		return AllowResult()
	}
	agg.HookErrors = append(agg.HookErrors, res.HookErrors...)
	return res
}

func mergeDecision(agg, res Result) Result {
	switch {
	case agg.Decision == Deny:
		// Deny already won; keep its reason.
		return agg
	case res.Decision == Deny:
		agg.Decision = Deny
		agg.Reason = res.Reason
	case res.Decision == Ask && agg.Decision != Ask:
		agg.Decision = Ask
		agg.Reason = res.Reason
	}
	return agg
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
