// Package orchestrator fans out a user turn to every participating agent,
// merges their chunk streams toward a display sink, and intercepts the
// convergence workflow tools (new_answer, vote) to decide when the run is
// done and who won.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/massgen-ai/massgen/agent"
	"github.com/massgen-ai/massgen/broadcast"
	"github.com/massgen-ai/massgen/display"
	"github.com/massgen-ai/massgen/hooks"
	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
	"github.com/massgen-ai/massgen/telemetry"
)

// HumanResponder answers a human-directed broadcast. Wire a terminal or
// web prompt implementation here; the zero value (nil) declines every
// prompt, matching broadcast mode "off" semantics for the human seat.
type HumanResponder interface {
	Prompt(ctx context.Context, req broadcast.Request) (content string, ok bool, err error)
}

// Result is the final outcome of one coordination run.
type Result struct {
	WinnerID     string
	Answer       string
	Restarts     int
	AgentStates  map[string]agent.State
}

// Orchestrator owns a fixed set of AgentRuntimes for the lifetime of one
// user turn, the broadcast channel they share, and the convergence state
// machine that decides when the run is finished.
type Orchestrator struct {
	id       string
	cfg      Config
	sink     display.Sink
	logger   telemetry.Logger
	human    HumanResponder
	channel  *broadcast.Channel

	novelty NoveltyChecker

	mu        sync.Mutex
	runtimes  map[string]*agent.AgentRuntime
	order     []string
	restarts  int
	done      chan Result
	decided   bool
}

// New constructs an Orchestrator. Agent runtimes are added with AddAgent
// before Run is called. New also creates the shared broadcast Channel,
// passing the orchestrator itself as the Channel's view.
func New(cfg Config, bcfg broadcast.Config, sink display.Sink, logger telemetry.Logger, human HumanResponder) *Orchestrator {
	if sink == nil {
		sink = display.NopSink{}
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	o := &Orchestrator{
		id:       uuid.NewString(),
		cfg:      cfg.WithDefaults(),
		sink:     sink,
		logger:   logger,
		human:    human,
		novelty:  DefaultNoveltyChecker,
		runtimes: make(map[string]*agent.AgentRuntime),
		done:     make(chan Result, 1),
	}
	o.channel = broadcast.New(o, bcfg, logger)
	return o
}

// SetNoveltyChecker overrides the new_answer novelty check, e.g. with one
// backed by an embedding-distance floor instead of the default
// whitespace-normalized equality check. Must be called before Run.
func (o *Orchestrator) SetNoveltyChecker(fn NoveltyChecker) {
	if fn == nil {
		fn = DefaultNoveltyChecker
	}
	o.novelty = fn
}

// Channel returns the broadcast channel this orchestrator's agents share,
// for wiring into each AgentRuntime's Options.Channel.
func (o *Orchestrator) Channel() *broadcast.Channel { return o.channel }

// AddAgent registers rt as a participant in this run.
func (o *Orchestrator) AddAgent(rt *agent.AgentRuntime) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runtimes[rt.ID()] = rt
	o.order = append(o.order, rt.ID())
}

// AgentIDs implements broadcast.OrchestratorView.
func (o *Orchestrator) AgentIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// InjectBroadcast implements broadcast.OrchestratorView.
func (o *Orchestrator) InjectBroadcast(ctx context.Context, agentID string, req broadcast.Request) error {
	rt := o.runtimeFor(agentID)
	if rt == nil {
		return fmt.Errorf("orchestrator: unknown agent %q", agentID)
	}
	return rt.InjectBroadcast(ctx, req)
}

// PendingBroadcastFor implements broadcast.OrchestratorView.
func (o *Orchestrator) PendingBroadcastFor(agentID string) *broadcast.Request {
	rt := o.runtimeFor(agentID)
	if rt == nil {
		return nil
	}
	return rt.PendingBroadcast()
}

// PromptHuman implements broadcast.OrchestratorView by delegating to the
// configured HumanResponder, if any.
func (o *Orchestrator) PromptHuman(ctx context.Context, req broadcast.Request) (string, bool, error) {
	if o.human == nil {
		return "", false, nil
	}
	return o.human.Prompt(ctx, req)
}

func (o *Orchestrator) runtimeFor(agentID string) *agent.AgentRuntime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtimes[agentID]
}

// NewAnswer implements agent.ConvergenceSink: it records the answer,
// notifies every other agent, and re-checks convergence.
func (o *Orchestrator) NewAnswer(ctx context.Context, agentID, content string) error {
	rt := o.runtimeFor(agentID)
	if rt == nil {
		return fmt.Errorf("orchestrator: unknown agent %q", agentID)
	}

	before := rt.Snapshot()
	if before.AnswerCount >= o.cfg.MaxNewAnswersPerAgent {
		return &massgenerr.ProtocolViolationError{
			Reason: fmt.Sprintf("agent %q exceeded max_new_answers_per_agent (%d)", agentID, o.cfg.MaxNewAnswersPerAgent),
		}
	}
	// A first answer has nothing to be compared against, so only later
	// answers go through the novelty check.
	if before.CurrentAnswer != nil && !o.novelty(*before.CurrentAnswer, content, o.cfg.AnswerNoveltyRequirement) {
		return &massgenerr.ProtocolViolationError{
			Reason: fmt.Sprintf("agent %q's new answer failed the novelty check", agentID),
		}
	}

	rt.RecordAnswer(content)

	o.broadcastUpdate(agentID, fmt.Sprintf("agent %s submitted a new answer", agentID))
	_ = o.sink.Emit(ctx, display.Event{Kind: display.KindOrchestratorEvent, AgentID: agentID, Payload: map[string]any{
		"event": "new_answer", "content": content,
	}})

	o.restartOthersOn(ctx, agentID)
	o.checkAndFinish(ctx)
	return nil
}

// Vote implements agent.ConvergenceSink.
func (o *Orchestrator) Vote(ctx context.Context, agentID, targetID, reason string) error {
	rt := o.runtimeFor(agentID)
	if rt == nil {
		return fmt.Errorf("orchestrator: unknown agent %q", agentID)
	}
	if o.runtimeFor(targetID) == nil {
		return &massgenerr.ProtocolViolationError{Reason: fmt.Sprintf("vote target %q is not a participating agent", targetID)}
	}
	rt.RecordVote(targetID, reason)

	_ = o.sink.Emit(ctx, display.Event{Kind: display.KindOrchestratorEvent, AgentID: agentID, Payload: map[string]any{
		"event": "vote", "target": targetID, "reason": reason,
	}})

	o.checkAndFinish(ctx)
	return nil
}

// restartOthersOn cancels every agent's in-flight run except the one that
// just answered, so they can reconsider the new answer.
func (o *Orchestrator) restartOthersOn(ctx context.Context, answeredBy string) {
	o.mu.Lock()
	ids := append([]string(nil), o.order...)
	o.restarts++
	restarts := o.restarts
	o.mu.Unlock()

	if restarts > o.cfg.MaxRestarts {
		o.logger.Warn(ctx, "max restarts exceeded, no further cancellation", "max_restarts", o.cfg.MaxRestarts)
		return
	}

	for _, id := range ids {
		if id == answeredBy {
			continue
		}
		if rt := o.runtimeFor(id); rt != nil {
			rt.BumpRestart()
		}
	}
}

func (o *Orchestrator) broadcastUpdate(from, text string) {
	o.mu.Lock()
	ids := append([]string(nil), o.order...)
	o.mu.Unlock()
	for _, id := range ids {
		if id == from {
			continue
		}
		if rt := o.runtimeFor(id); rt != nil {
			rt.NotifyUpdate(text)
		}
	}
}

// checkAndFinish tallies votes across every agent's current snapshot and,
// if converged, delivers the Result on o.done exactly once.
func (o *Orchestrator) checkAndFinish(ctx context.Context) {
	o.mu.Lock()
	if o.decided {
		o.mu.Unlock()
		return
	}
	states := make(map[string]agent.State, len(o.runtimes))
	for id, rt := range o.runtimes {
		states[id] = rt.Snapshot()
	}
	o.mu.Unlock()

	result := checkConvergence(states, o.cfg.VotingSensitivity)
	if !result.converged {
		return
	}

	winnerState := states[result.winnerID]
	var answer string
	if winnerState.CurrentAnswer != nil {
		answer = *winnerState.CurrentAnswer
	}

	o.mu.Lock()
	if o.decided {
		o.mu.Unlock()
		return
	}
	o.decided = true
	restarts := o.restarts
	o.mu.Unlock()

	for _, id := range o.AgentIDs() {
		if rt := o.runtimeFor(id); rt != nil && id != result.winnerID {
			rt.Cancel("convergence reached")
		}
	}

	_ = o.sink.Emit(ctx, display.Event{Kind: display.KindFinalAnswer, AgentID: result.winnerID, Payload: map[string]any{
		"answer": answer,
	}})

	o.done <- Result{
		WinnerID:    result.winnerID,
		Answer:      answer,
		Restarts:    restarts,
		AgentStates: states,
	}
}

// Run starts every registered agent's first turn with messages and blocks
// until convergence, until every agent's stream has ended (returning a
// Result with no winner), or until ctx is done, fanning each agent's chunks
// out to the display sink tagged with its agent ID as it goes.
func (o *Orchestrator) Run(ctx context.Context, messages []stream.Message) (Result, error) {
	o.mu.Lock()
	ids := append([]string(nil), o.order...)
	o.mu.Unlock()

	if len(ids) == 0 {
		return Result{}, fmt.Errorf("orchestrator: no agents registered")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		rt := o.runtimeFor(id)
		if rt == nil {
			continue
		}
		wg.Add(1)
		go func(agentID string, rt *agent.AgentRuntime) {
			defer wg.Done()
			o.pumpAgent(ctx, agentID, rt, messages)
		}(id, rt)
	}

	go func() {
		wg.Wait()
		o.checkAndFinish(ctx)
		o.mu.Lock()
		decided := o.decided
		o.mu.Unlock()
		if !decided {
			// Every agent finished its stream without the run converging
			// (e.g. all answered but nobody voted yet, or all errored).
			o.mu.Lock()
			states := make(map[string]agent.State, len(o.runtimes))
			for id, rt := range o.runtimes {
				states[id] = rt.Snapshot()
			}
			o.decided = true
			o.mu.Unlock()
			o.done <- Result{AgentStates: states}
		}
	}()

	select {
	case res := <-o.done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// pumpAgent repeatedly runs rt until it stops emitting restartable
// cancellation errors (a fresh restart supersedes a cancelled run), and
// forwards every chunk it produces to the display sink.
func (o *Orchestrator) pumpAgent(ctx context.Context, agentID string, rt *agent.AgentRuntime, messages []stream.Message) {
	for {
		chunks, err := rt.Run(ctx, messages)
		if err != nil {
			o.logger.Error(ctx, "agent run failed to start", "agent_id", agentID, "error", err)
			return
		}

		cancelled := false
		for chunk := range chunks {
			_ = o.sink.Emit(ctx, display.Event{Kind: display.KindAgentChunk, AgentID: agentID, Payload: chunk})
			if chunk.Type == stream.ChunkError && chunk.Retryable {
				cancelled = true
			}
		}

		if ctx.Err() != nil {
			return
		}
		if !cancelled {
			return
		}
		if o.decidedFinal() {
			return
		}
		// Brief yield before restarting so a flurry of restarts doesn't
		// spin the goroutine hot.
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) decidedFinal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decided
}

// WireHooks registers the built-in mid-stream injection hook for rt,
// sourcing pending updates from rt's own NotifyUpdate queue. Call it once
// per agent.
func WireHooks(mgr *hooks.Manager, rt *agent.AgentRuntime) {
	mgr.RegisterForAgent(rt.ID(), hooks.PostToolUse, &hooks.MidStreamInjectionHook{Source: rt})
}
