// Package massgenerr defines the closed taxonomy of errors the
// coordination kernel returns. Callers use errors.Is/errors.As against
// these sentinels and typed errors instead of matching on message text.
package massgenerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra payload.
var (
	// ErrCancelled indicates a stream ended because its restart token
	// advanced mid-run.
	ErrCancelled = errors.New("massgen: run cancelled")
	// ErrConfiguration indicates a fail-fast configuration problem
	// (workflow-tool name collision, missing model, unresolved config path).
	ErrConfiguration = errors.New("massgen: configuration error")
	// ErrUnknownRequest indicates an operation referenced a broadcast
	// request ID the channel has no record of.
	ErrUnknownRequest = errors.New("massgen: unknown broadcast request")
)

// PendingBroadcastError is returned when an agent tries to create a new
// broadcast while it already has one awaiting its response — a
// deadlock-avoidance guard.
type PendingBroadcastError struct {
	PendingSenderID string
	PendingQuestion string
}

func (e *PendingBroadcastError) Error() string {
	return fmt.Sprintf("massgen: agent has a pending broadcast from %q, must respond_to_broadcast first", e.PendingSenderID)
}

// BroadcastRateLimitError is returned when a sender is already at
// max_broadcasts_per_agent active broadcasts.
type BroadcastRateLimitError struct {
	SenderID string
	Max      int
}

func (e *BroadcastRateLimitError) Error() string {
	return fmt.Sprintf("massgen: agent %q at max active broadcasts (%d)", e.SenderID, e.Max)
}

// ProtocolViolationError is returned by workflow-tool handlers when an
// agent submits an invalid vote target, exceeds max_new_answers_per_agent,
// or otherwise violates the convergence protocol. It never terminates the
// stream; it is returned to the model as the tool result.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("massgen: protocol violation: %s", e.Reason)
}

// ToolError wraps a failure raised by a tool implementation. Tool
// failures are always returned to the model as the tool result and never
// propagate as a backend-level error.
type ToolError struct {
	ToolName string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("massgen: tool %q failed: %v", e.ToolName, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ProviderError wraps a provider-transient or context-overflow failure
// from a Backend. Retryable mirrors the ChunkError.Retryable field the
// backend will also emit.
type ProviderError struct {
	Kind      string // "context-overflow" or "provider-transient"
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("massgen: provider error (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
