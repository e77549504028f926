// Package hooks implements a pre/post tool-call interception framework:
// global and per-agent hooks that can allow, deny, or ask for
// confirmation before a tool runs, and inject content into the
// conversation after it runs.
package hooks

import (
	"context"
	"time"
)

// Type enumerates the two hook points.
type Type string

const (
	// PreToolUse fires before a tool executes.
	PreToolUse Type = "PreToolUse"
	// PostToolUse fires after a tool's result is available.
	PostToolUse Type = "PostToolUse"
)

// Decision is the closed set of outcomes a Hook can return.
type Decision string

const (
	// Allow lets execution continue; UpdatedInput, if set, replaces the
	// tool arguments.
	Allow Decision = "allow"
	// Deny skips the tool call; Reason is surfaced to the model as the
	// tool result.
	Deny Decision = "deny"
	// Ask marks a call as needing confirmation. AgentRuntime has no
	// confirmation step: it runs the tool exactly as for Allow.
	Ask Decision = "ask"
)

// InjectStrategy enumerates how a PostToolUse injection is delivered.
type InjectStrategy string

const (
	// StrategyToolResult appends the injected text to the tool's own
	// result content.
	StrategyToolResult InjectStrategy = "tool_result"
	// StrategyUserMessage delivers the injected text as a separate
	// synthetic user message immediately after the tool result.
	StrategyUserMessage InjectStrategy = "user_message"
)

// Event carries the context passed to a Hook.
type Event struct {
	HookType       Type
	SessionID      string
	OrchestratorID string
	AgentID        string
	At             time.Time
	ToolName       string
	ToolInput      map[string]any
	// ToolOutput is only populated for PostToolUse.
	ToolOutput string
}

// Injection is the content a PostToolUse hook wants added to the
// conversation, and how.
type Injection struct {
	Content  string
	Strategy InjectStrategy
}

// Result is what a Hook returns. Decision determines routing; see the
// Decision constants. HookErrors accumulates failures from any hook that
// ran as part of producing this aggregate result (see
// Manager.RunPreToolUse and Manager.RunPostToolUse),
// even when the net decision is Allow (fail-open policy).
type Result struct {
	Decision      Decision
	Reason        string
	UpdatedInput  map[string]any
	Inject        []Injection
	HookErrors    []string
}

// AllowResult returns the default, no-op Result.
func AllowResult() Result { return Result{Decision: Allow} }

// DenyResult returns a Result that skips the tool call.
func DenyResult(reason string) Result { return Result{Decision: Deny, Reason: reason} }

// AskResult returns a Result with the Ask decision (see Ask).
func AskResult(reason string) Result { return Result{Decision: Ask, Reason: reason} }

// Hook is the interface every pre/post tool-use interceptor implements.
type Hook interface {
	// Name identifies the hook in the Manager's HookErrors messages.
	Name() string
	// Execute runs the hook for one event. Any error returned is caught
	// by the Manager and treated as the fail-open policy: the hook's
	// contribution becomes Allow with no injection, and the error is
	// recorded in the aggregate Result.HookErrors.
	Execute(ctx context.Context, event Event) (Result, error)
}

// HookFunc adapts an ordinary function to the Hook interface.
type HookFunc struct {
	FuncName string
	Fn       func(ctx context.Context, event Event) (Result, error)
}

func (f HookFunc) Name() string { return f.FuncName }

func (f HookFunc) Execute(ctx context.Context, event Event) (Result, error) {
	return f.Fn(ctx, event)
}
