package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/massgen-ai/massgen/broadcast"
	"github.com/massgen-ai/massgen/hooks"
	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
	"github.com/massgen-ai/massgen/telemetry"
	"github.com/massgen-ai/massgen/toolschema"
)

// ToolExecutor runs one non-workflow tool call. Regular tools execute
// in-process; MCP tools are delegated to an MCP client by the concrete
// implementation.
type ToolExecutor interface {
	Execute(ctx context.Context, call stream.ToolCall) (resultText string, err error)
}

// ConvergenceSink is the orchestrator's public interface for the two
// convergence workflow tools, new_answer and vote. Taking this narrow
// interface instead of the orchestrator itself avoids a cyclic package
// reference between agent and orchestrator.
type ConvergenceSink interface {
	NewAnswer(ctx context.Context, agentID, content string) error
	Vote(ctx context.Context, agentID, targetID, reason string) error
}

// Options configures an AgentRuntime.
type Options struct {
	ID          string
	Backend     stream.Backend
	Tools       []stream.ToolSpec // non-workflow tools available to this agent
	ToolExec    ToolExecutor
	Hooks       *hooks.Manager
	Channel     *broadcast.Channel
	Convergence ConvergenceSink
	Params      stream.Params
	Logger      telemetry.Logger
	Workspace   string
}

// AgentRuntime owns one backend, one workspace, and its own broadcast
// queue. It is single-threaded with cooperative suspension: at most one
// tool runs at a time per agent, though many AgentRuntimes run in
// parallel under the orchestrator.
type AgentRuntime struct {
	opts      Options
	validator *toolschema.Validator

	mu    sync.Mutex
	state State
	queue broadcastQueue

	updatesMu sync.Mutex
	updates   []string

	runMu      sync.Mutex
	cancelCurr context.CancelFunc
}

// New constructs an AgentRuntime. It fails fast if opts.Tools collides
// with a reserved workflow-tool name.
func New(opts Options) (*AgentRuntime, error) {
	if err := toolschema.CheckCollisions(opts.Tools); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	return &AgentRuntime{
		opts:      opts,
		validator: toolschema.NewValidator(),
		state:     State{ID: opts.ID, Status: StatusWaiting},
	}, nil
}

// Snapshot returns a copy of the agent's current state.
func (rt *AgentRuntime) Snapshot() State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// ID returns the agent's identifier.
func (rt *AgentRuntime) ID() string { return rt.opts.ID }

// RecordAnswer stores content as the agent's current answer, bumping
// AnswerCount and clearing any prior vote (a fresh answer supersedes a
// standing vote, per the convergence protocol: an agent that answers
// again is no longer voting for anyone).
func (rt *AgentRuntime) RecordAnswer(content string) State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.state.CurrentAnswer = &content
	rt.state.AnswerAt = time.Now().UnixNano()
	rt.state.AnswerCount++
	rt.state.Vote = nil
	rt.state.Status = StatusAnswered
	return rt.state
}

// RecordVote stores the agent's vote for targetID.
func (rt *AgentRuntime) RecordVote(targetID, reason string) State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.state.Vote = &Vote{TargetID: targetID, Reason: reason}
	rt.state.Status = StatusVoting
	return rt.state
}

// BumpRestart increments the restart token and cancels the agent's
// current run, so a fresh Run call picks up the change.
func (rt *AgentRuntime) BumpRestart() int64 {
	rt.mu.Lock()
	rt.state.RestartToken++
	token := rt.state.RestartToken
	rt.mu.Unlock()
	rt.Cancel("restarted: peer state changed")
	return token
}

// Cancel raises the restart token's cancellation signal for the run
// currently in flight, if any. The in-flight Run call will finish by
// emitting an error chunk with Retryable=true followed by done.
func (rt *AgentRuntime) Cancel(string) {
	rt.runMu.Lock()
	cancel := rt.cancelCurr
	rt.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InjectBroadcast appends req to the agent's incoming broadcast queue.
func (rt *AgentRuntime) InjectBroadcast(_ context.Context, req broadcast.Request) error {
	rt.queue.push(req)
	rt.NotifyUpdate(fmt.Sprintf("[broadcast from %s] %s", req.SenderID, req.Question))
	return nil
}

// PendingBroadcast returns the broadcast at the head of this agent's own
// queue, used by the broadcast channel's deadlock guard.
func (rt *AgentRuntime) PendingBroadcast() *broadcast.Request {
	return rt.queue.peek()
}

// NotifyUpdate records a piece of cross-agent news (a peer's new answer,
// a broadcast response) to be surfaced via the mid-stream injection hook
// the next time this agent finishes a tool call.
func (rt *AgentRuntime) NotifyUpdate(text string) {
	rt.updatesMu.Lock()
	defer rt.updatesMu.Unlock()
	rt.updates = append(rt.updates, text)
}

// PendingUpdates implements hooks.MidStreamUpdateSource: it drains and
// returns accumulated cross-agent updates.
func (rt *AgentRuntime) PendingUpdates(agentID string) []string {
	if agentID != rt.opts.ID {
		return nil
	}
	rt.updatesMu.Lock()
	defer rt.updatesMu.Unlock()
	if len(rt.updates) == 0 {
		return nil
	}
	out := rt.updates
	rt.updates = nil
	return out
}

// Run executes one turn: it streams from the backend, executes any tool
// calls (workflow tools handled locally, others via ToolExecutor),
// resumes with the tool results, and repeats until a done chunk arrives
// without tool calls. The returned channel is closed once the terminal
// chunk has been sent.
func (rt *AgentRuntime) Run(ctx context.Context, messages []stream.Message) (<-chan stream.Chunk, error) {
	runCtx, cancel := context.WithCancel(ctx)
	rt.runMu.Lock()
	rt.cancelCurr = cancel
	rt.runMu.Unlock()

	rt.mu.Lock()
	rt.state.Status = StatusWorking
	rt.mu.Unlock()

	out := make(chan stream.Chunk, 16)
	go func() {
		defer close(out)
		defer func() {
			rt.runMu.Lock()
			if rt.cancelCurr != nil {
				rt.cancelCurr = nil
			}
			rt.runMu.Unlock()
			cancel()
		}()
		rt.loop(runCtx, messages, out)
	}()
	return out, nil
}

func (rt *AgentRuntime) loop(ctx context.Context, messages []stream.Message, out chan<- stream.Chunk) {
	current := messages
	for {
		chunks, err := rt.opts.Backend.Stream(ctx, current, rt.opts.Tools, rt.opts.Params)
		if err != nil {
			rt.emitCancelOrError(ctx, out, err)
			return
		}

		var toolCalls []stream.ToolCall
		var assistantText string
		sawToolCalls := false

		for chunk := range chunks {
			if ctx.Err() != nil {
				rt.emitCancelled(out)
				return
			}
			switch chunk.Type {
			case stream.ChunkContent:
				assistantText += chunk.Content
				out <- chunk
			case stream.ChunkToolCalls:
				toolCalls = chunk.ToolCalls
				sawToolCalls = true
				out <- chunk
			case stream.ChunkDone:
				// Swallow the backend's done; the runtime emits its own
				// terminal done only once the whole turn (including any
				// tool round-trips) is finished.
			default:
				out <- chunk
			}
		}

		if ctx.Err() != nil {
			rt.emitCancelled(out)
			return
		}

		if !sawToolCalls {
			out <- stream.Chunk{Type: stream.ChunkDone}
			rt.mu.Lock()
			if rt.state.Status == StatusWorking {
				rt.state.Status = StatusCompleted
			}
			rt.mu.Unlock()
			return
		}

		assistantMsg := stream.Message{Role: stream.RoleAssistant, Content: assistantText, ToolCalls: toolCalls}
		toolResults, injections, err := rt.handleToolCalls(ctx, toolCalls, out)
		if err != nil {
			rt.emitCancelOrError(ctx, out, err)
			return
		}

		current = append(append([]stream.Message{}, current...), assistantMsg)
		current = append(current, toolResults...)
		current = append(current, injections...)
	}
}

func (rt *AgentRuntime) emitCancelled(out chan<- stream.Chunk) {
	out <- stream.Chunk{Type: stream.ChunkError, Err: massgenerr.ErrCancelled.Error(), Retryable: true}
	out <- stream.Chunk{Type: stream.ChunkDone}
	rt.mu.Lock()
	rt.state.Status = StatusCanceled
	rt.mu.Unlock()
}

func (rt *AgentRuntime) emitCancelOrError(ctx context.Context, out chan<- stream.Chunk, err error) {
	if ctx.Err() != nil {
		rt.emitCancelled(out)
		return
	}
	out <- stream.Chunk{Type: stream.ChunkError, Err: err.Error(), Retryable: true}
	out <- stream.Chunk{Type: stream.ChunkDone}
	rt.mu.Lock()
	rt.state.Status = StatusError
	rt.mu.Unlock()
}

// handleToolCalls executes one batch of tool calls sequentially (the
// runtime is single-threaded with cooperative suspension), running hooks
// around non-workflow tools and handling reserved workflow-tool names
// locally.
func (rt *AgentRuntime) handleToolCalls(ctx context.Context, calls []stream.ToolCall, _ chan<- stream.Chunk) ([]stream.Message, []stream.Message, error) {
	var results []stream.Message
	var toolResultInjections, userMsgInjections []string

	for _, call := range calls {
		var resultText string
		var err error

		if isWorkflowTool(call.Name) {
			resultText, err = rt.executeWorkflowTool(ctx, call)
		} else {
			resultText, err = rt.executeRegularTool(ctx, call, &toolResultInjections, &userMsgInjections)
		}
		if err != nil {
			resultText = fmt.Sprintf(`{"error": %q}`, err.Error())
		}
		results = append(results, stream.Message{
			Role:       stream.RoleTool,
			Content:    resultText,
			ToolCallID: call.ID,
		})
	}

	if len(toolResultInjections) > 0 {
		// tool_result strategy: the injected text is appended to the last
		// tool call's own result content.
		last := &results[len(results)-1]
		for _, inj := range toolResultInjections {
			last.Content += "\n" + inj
		}
	}

	var injectionMsgs []stream.Message
	for _, inj := range userMsgInjections {
		injectionMsgs = append(injectionMsgs, stream.Message{Role: stream.RoleUser, Content: inj})
	}

	return results, injectionMsgs, nil
}

func (rt *AgentRuntime) executeRegularTool(ctx context.Context, call stream.ToolCall, toolResultInjections, userMsgInjections *[]string) (string, error) {
	spec, ok := rt.findTool(call.Name)
	if ok {
		if err := rt.validator.Validate(spec, call); err != nil {
			return "", err
		}
	}

	event := hooks.Event{
		HookType:  hooks.PreToolUse,
		AgentID:   rt.opts.ID,
		At:        time.Now(),
		ToolName:  call.Name,
		ToolInput: decodeArgs(call.Arguments),
	}
	pre := rt.runPre(ctx, event)
	switch pre.Decision {
	case hooks.Deny:
		return "", &massgenerr.ProtocolViolationError{Reason: pre.Reason}
	case hooks.Ask, hooks.Allow:
		if pre.UpdatedInput != nil {
			if b, err := json.Marshal(pre.UpdatedInput); err == nil {
				call.Arguments = string(b)
			}
		}
	}

	var resultText string
	var toolErr error
	if rt.opts.ToolExec != nil {
		resultText, toolErr = rt.opts.ToolExec.Execute(ctx, call)
	} else {
		toolErr = fmt.Errorf("no tool executor configured for %q", call.Name)
	}
	if toolErr != nil {
		resultText = fmt.Sprintf(`{"error": %q}`, toolErr.Error())
	}

	postEvent := hooks.Event{
		HookType:   hooks.PostToolUse,
		AgentID:    rt.opts.ID,
		At:         time.Now(),
		ToolName:   call.Name,
		ToolInput:  decodeArgs(call.Arguments),
		ToolOutput: resultText,
	}
	post := rt.runPost(ctx, postEvent)
	for _, inj := range post.Inject {
		switch inj.Strategy {
		case hooks.StrategyToolResult:
			*toolResultInjections = append(*toolResultInjections, inj.Content)
		case hooks.StrategyUserMessage:
			*userMsgInjections = append(*userMsgInjections, inj.Content)
		}
	}
	return resultText, nil
}

// workflowArgs is the superset of arguments the six reserved tool names
// accept. Each handler reads only the fields relevant to it.
type workflowArgs struct {
	Content    string `json:"content"`
	AgentID    string `json:"agent_id"`
	Reason     string `json:"reason"`
	Question   string `json:"question"`
	TimeoutMs  int    `json:"timeout_ms"`
	Mode       string `json:"mode"`
	Wait       bool   `json:"wait"`
	RequestID  string `json:"request_id"`
}

// executeWorkflowTool handles the six reserved workflow tool names
// locally, without consulting hooks or the ToolExecutor: these are
// coordination primitives, not client tools.
func (rt *AgentRuntime) executeWorkflowTool(ctx context.Context, call stream.ToolCall) (string, error) {
	var args workflowArgs
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("workflow tool %q: invalid arguments: %w", call.Name, err)
		}
	}

	switch call.Name {
	case "new_answer":
		if rt.opts.Convergence == nil {
			return "", fmt.Errorf("new_answer: no convergence sink configured")
		}
		if err := rt.opts.Convergence.NewAnswer(ctx, rt.opts.ID, args.Content); err != nil {
			return "", err
		}
		return `{"status": "recorded"}`, nil

	case "vote":
		if rt.opts.Convergence == nil {
			return "", fmt.Errorf("vote: no convergence sink configured")
		}
		if args.AgentID == rt.opts.ID {
			return "", &massgenerr.ProtocolViolationError{Reason: "agent cannot vote for itself"}
		}
		if err := rt.opts.Convergence.Vote(ctx, rt.opts.ID, args.AgentID, args.Reason); err != nil {
			return "", err
		}
		return `{"status": "recorded"}`, nil

	case "ask_others":
		if rt.opts.Channel == nil {
			return "", fmt.Errorf("ask_others: no broadcast channel configured")
		}
		mode := broadcast.ResponseModeInline
		if args.Mode == string(broadcast.ResponseModeBackground) || !args.Wait {
			mode = broadcast.ResponseModeBackground
		}
		timeout := time.Duration(args.TimeoutMs) * time.Millisecond
		id, err := rt.opts.Channel.Create(ctx, rt.opts.ID, args.Question, mode, timeout)
		if err != nil {
			return "", err
		}
		if err := rt.opts.Channel.Inject(ctx, id); err != nil {
			return "", err
		}
		if mode == broadcast.ResponseModeBackground {
			b, _ := json.Marshal(map[string]any{"request_id": id, "status": "collecting"})
			return string(b), nil
		}
		snap, err := rt.opts.Channel.Wait(ctx, id, timeout)
		if err != nil {
			return "", err
		}
		rt.opts.Channel.Cleanup(id)
		b, _ := json.Marshal(map[string]any{"request_id": id, "status": snap.Status, "responses": snap.Responses})
		return string(b), nil

	case "respond_to_broadcast":
		req := rt.queue.pop()
		if req == nil {
			return "", &massgenerr.ProtocolViolationError{Reason: "no pending broadcast to respond to"}
		}
		if rt.opts.Channel == nil {
			return "", fmt.Errorf("respond_to_broadcast: no broadcast channel configured")
		}
		if err := rt.opts.Channel.Collect(ctx, req.ID, rt.opts.ID, args.Content, false); err != nil {
			return "", err
		}
		return `{"status": "responded"}`, nil

	case "check_broadcast_status":
		if rt.opts.Channel == nil {
			return "", fmt.Errorf("check_broadcast_status: no broadcast channel configured")
		}
		snap, err := rt.opts.Channel.Status(args.RequestID)
		if err != nil {
			return "", err
		}
		b, _ := json.Marshal(snap)
		return string(b), nil

	case "get_broadcast_responses":
		if rt.opts.Channel == nil {
			return "", fmt.Errorf("get_broadcast_responses: no broadcast channel configured")
		}
		snap, err := rt.opts.Channel.Responses(args.RequestID)
		if err != nil {
			return "", err
		}
		b, _ := json.Marshal(snap)
		return string(b), nil

	default:
		return "", fmt.Errorf("unhandled workflow tool %q", call.Name)
	}
}

func (rt *AgentRuntime) runPre(ctx context.Context, event hooks.Event) hooks.Result {
	if rt.opts.Hooks == nil {
		return hooks.AllowResult()
	}
	return rt.opts.Hooks.RunPreToolUse(ctx, event)
}

func (rt *AgentRuntime) runPost(ctx context.Context, event hooks.Event) hooks.Result {
	if rt.opts.Hooks == nil {
		return hooks.AllowResult()
	}
	return rt.opts.Hooks.RunPostToolUse(ctx, event)
}

func (rt *AgentRuntime) findTool(name string) (stream.ToolSpec, bool) {
	for _, t := range rt.opts.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return stream.ToolSpec{}, false
}

func decodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{"_raw": raw}
	}
	return m
}

func isWorkflowTool(name string) bool {
	for _, n := range stream.ReservedToolNames {
		if n == name {
			return true
		}
	}
	return false
}
