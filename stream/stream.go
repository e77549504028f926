// Package stream defines the uniform streaming contract every LLM provider
// adapter must satisfy: a finite, ordered sequence of tagged StreamChunk
// values terminated by exactly one done chunk.
package stream

import "context"

// ChunkType enumerates the closed set of StreamChunk variants. Every chunk
// produced by a Backend carries exactly one of these types, and fields not
// applicable to the variant are left at their zero value.
type ChunkType string

const (
	// ChunkContent carries a fragment of visible assistant output.
	// Concatenating all ChunkContent fragments of one turn yields the full
	// assistant text for that turn.
	ChunkContent ChunkType = "content"
	// ChunkReasoning carries a fragment of the model's internal thinking,
	// when the provider exposes it.
	ChunkReasoning ChunkType = "reasoning"
	// ChunkToolCalls carries a batch of tool invocations that ends the
	// model's turn. No further ChunkContent follows a ChunkToolCalls chunk
	// within the same stream; the caller executes the tools and resumes
	// with a new Stream call.
	ChunkToolCalls ChunkType = "tool_calls"
	// ChunkToolResult carries a tool result to be fed back to the model.
	ChunkToolResult ChunkType = "tool_result"
	// ChunkCompressionStatus is purely observational: it reports the
	// reactive compression sub-protocol's progress and never changes the
	// transcript an orchestrator observes.
	ChunkCompressionStatus ChunkType = "compression_status"
	// ChunkStatus carries an informational code not part of the transcript.
	ChunkStatus ChunkType = "status"
	// ChunkError reports that the turn failed. An error chunk always
	// precedes the terminal done chunk.
	ChunkError ChunkType = "error"
	// ChunkDone terminates the stream. Exactly one is emitted per Stream
	// call, even on error.
	ChunkDone ChunkType = "done"
)

// CompressionState enumerates the compression sub-protocol's phases as
// reported by ChunkCompressionStatus chunks.
type CompressionState string

const (
	CompressionDetected   CompressionState = "detected"
	CompressionCompacting CompressionState = "compressing"
	CompressionCompacted  CompressionState = "compressed"
	CompressionFailed     CompressionState = "failed"
)

// Role enumerates Message.Role values.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the ordered conversation a Backend is asked to
// continue. The first system message is the agent's prompt; the last
// message is the user turn currently being answered.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall describes one invocation requested by the model. Arguments are
// always carried as a serialized JSON string across component boundaries,
// even when structurally a map, so every backend shares one wire shape.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Params carries provider-agnostic generation parameters. Each Backend
// adapter maps these to its native request shape and silently drops
// options it does not support.
type Params struct {
	Temperature       *float64
	MaxTokens         int
	EnableReasoning   bool
	EnableWebSearch   bool
	ContextWindow     int
	Extra             map[string]any
}

// Chunk is the single event type exchanged between every Backend and its
// caller (typically an Agent Runtime). Chunks are ordered within one
// stream; across streams, ordering is only anchored at stream start and at
// the terminal Done chunk.
type Chunk struct {
	Type ChunkType

	// Content carries the incremental text fragment for both ChunkContent
	// and ChunkReasoning.
	Content string

	// ToolCalls carries the batch for ChunkToolCalls.
	ToolCalls []ToolCall

	// ToolResultID/ToolResultText carry the payload for ChunkToolResult.
	ToolResultID   string
	ToolResultText string

	// CompressionStatus/CompressionNote carry the payload for
	// ChunkCompressionStatus.
	CompressionStatus CompressionState
	CompressionNote   string
	CompressionKept   int
	CompressionRatio  float64

	// StatusCode carries the payload for ChunkStatus.
	StatusCode string

	// Err/Retryable carry the payload for ChunkError.
	Err       string
	Retryable bool
}

// Backend is the capability every provider adapter must satisfy. It is
// modeled as a small capability interface rather than an inheritance
// hierarchy, so provider-specific parameter handling can be composed
// separately from the streaming mechanics.
type Backend interface {
	// Stream runs one model turn and returns a channel of Chunk values.
	// The sequence is finite and always terminates with exactly one
	// ChunkDone, even on error (a ChunkError precedes it). The returned
	// channel is closed after the terminal chunk is sent. Stream must
	// honor ctx cancellation: a canceled context surfaces as a ChunkError
	// with Retryable true, followed by ChunkDone, within a bounded grace
	// period.
	Stream(ctx context.Context, messages []Message, tools []ToolSpec, params Params) (<-chan Chunk, error)

	// SetGeneralHookManager installs the hook manager the backend should
	// consult (if it executes tools itself) or that the caller will use
	// around tool calls this backend emits. Backends that never execute
	// tools locally may implement this as a no-op.
	SetGeneralHookManager(mgr any)
}

// ToolSpec describes one tool made available to the model for a turn.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ReservedToolNames are the workflow-tool names the orchestrator
// interprets itself; no client-provided tool may use one of these names
// (see toolschema.CheckCollisions).
var ReservedToolNames = []string{
	"new_answer",
	"vote",
	"ask_others",
	"respond_to_broadcast",
	"check_broadcast_status",
	"get_broadcast_responses",
}
