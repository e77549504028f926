// Package display defines the abstract sink every other component emits
// user-visible events to. It is consumed by external TUI/web UI layers
// that are themselves out of scope for the coordination kernel.
package display

import "context"

// EventKind enumerates the user-visible event types the kernel emits.
type EventKind string

const (
	// KindAgentChunk wraps a raw stream.Chunk from one agent's backend.
	KindAgentChunk EventKind = "agent_chunk"
	// KindOrchestratorEvent is a synthetic event the orchestrator injects
	// itself (e.g. "agent X submitted a new answer").
	KindOrchestratorEvent EventKind = "orchestrator_event"
	// KindFinalAnswer announces convergence and the winning answer.
	KindFinalAnswer EventKind = "final_answer"
	// KindError surfaces a dedicated error event.
	KindError EventKind = "error"
)

// Event is one whole, self-contained unit submitted to a Sink. The core
// never submits partial fields — Sink implementations can treat each
// Event as an atomic append.
type Event struct {
	Kind      EventKind
	AgentID   string // empty for orchestrator-wide events
	SessionID string
	Payload   any
}

// Sink is the append-only port every component submits Events to. The
// core treats it as thread-safe at the implementer's discretion.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards every event. Useful as a default when no display is
// configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }
