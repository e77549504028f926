package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/telemetry"
)

// OrchestratorView is the slice of the orchestrator a Channel needs,
// taken as a constructor argument instead of the orchestrator itself to
// avoid a cyclic package reference: the channel depends on the
// orchestrator's public interface (agent map, config getter, human UI
// port), never the concrete orchestrator type.
type OrchestratorView interface {
	// AgentIDs returns every agent participating in the current run.
	AgentIDs() []string
	// InjectBroadcast enqueues req into agentID's broadcast queue.
	InjectBroadcast(ctx context.Context, agentID string, req Request) error
	// PendingBroadcastFor returns the broadcast at the head of agentID's
	// own incoming queue that it has not yet responded to, or nil.
	PendingBroadcastFor(agentID string) *Request
	// PromptHuman blocks until a human responds to req or ctx is done. ok
	// is false if the human declined to answer (rather than timing out).
	PromptHuman(ctx context.Context, req Request) (content string, ok bool, err error)
}

// Channel manages the lifecycle of broadcast requests: create, inject,
// collect, wait, and cleanup. A Channel is scoped to exactly one
// orchestrator instance; its state is guarded by one lock, never a
// process-wide singleton.
type Channel struct {
	view   OrchestratorView
	config Config
	logger telemetry.Logger

	mu               sync.Mutex
	active           map[string]*Request
	responses        map[string][]Response
	done             map[string]chan struct{}
	senderLimiters   map[string]*rate.Limiter
}

// New returns a Channel bound to view, using cfg (zero-value fields get
// their defaults via Config.WithDefaults).
func New(view OrchestratorView, cfg Config, logger telemetry.Logger) *Channel {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Channel{
		view:           view,
		config:         cfg.WithDefaults(),
		logger:         logger,
		active:         make(map[string]*Request),
		responses:      make(map[string][]Response),
		done:           make(map[string]chan struct{}),
		senderLimiters: make(map[string]*rate.Limiter),
	}
}

// Create allocates a new broadcast request for senderID, enforcing the
// rate limit and the deadlock-avoidance guard (a sender that still has an
// unanswered broadcast from another agent in its own queue cannot open
// one). It does not inject the
// question into recipient queues; call Inject for that.
func (c *Channel) Create(ctx context.Context, senderID, question string, mode ResponseMode, timeout time.Duration) (string, error) {
	if pending := c.view.PendingBroadcastFor(senderID); pending != nil {
		return "", &massgenerr.PendingBroadcastError{
			PendingSenderID: pending.SenderID,
			PendingQuestion: pending.Question,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	activeForSender := 0
	for _, r := range c.active {
		if r.SenderID == senderID {
			activeForSender++
		}
	}
	if activeForSender >= c.config.MaxBroadcastsPerAgent {
		return "", &massgenerr.BroadcastRateLimitError{SenderID: senderID, Max: c.config.MaxBroadcastsPerAgent}
	}

	limiter := c.senderLimiters[senderID]
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(c.config.Timeout/time.Duration(c.config.MaxBroadcastsPerAgent+1)), c.config.MaxBroadcastsPerAgent)
		c.senderLimiters[senderID] = limiter
	}
	if !limiter.Allow() {
		return "", &massgenerr.BroadcastRateLimitError{SenderID: senderID, Max: c.config.MaxBroadcastsPerAgent}
	}

	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	expected := len(c.view.AgentIDs()) - 1
	if c.config.Mode == ModeHuman {
		expected++
	}

	id := uuid.NewString()
	req := &Request{
		ID:            id,
		SenderID:      senderID,
		Question:      question,
		CreatedAt:      time.Now(),
		Timeout:       timeout,
		ResponseMode:  mode,
		ExpectedCount: expected,
		Status:        StatusPending,
	}
	c.active[id] = req
	c.responses[id] = nil
	c.done[id] = make(chan struct{})

	c.logger.Info(ctx, "broadcast created", "request_id", id, "sender", senderID, "expected", expected)
	return id, nil
}

// Inject enqueues the broadcast question into every agent except the
// sender. In human mode it additionally blocks on the human response
// before returning, pausing collection exactly as the original
// _prompt_human does.
func (c *Channel) Inject(ctx context.Context, requestID string) error {
	c.mu.Lock()
	req, ok := c.active[requestID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", massgenerr.ErrUnknownRequest, requestID)
	}
	req.Status = StatusCollecting
	reqCopy := *req
	c.mu.Unlock()

	for _, agentID := range c.view.AgentIDs() {
		if agentID == reqCopy.SenderID {
			continue
		}
		if err := c.view.InjectBroadcast(ctx, agentID, reqCopy); err != nil {
			return fmt.Errorf("broadcast: injecting into %q: %w", agentID, err)
		}
	}

	if c.config.Mode == ModeHuman {
		humanCtx, cancel := context.WithTimeout(ctx, reqCopy.Timeout)
		defer cancel()
		content, ok, err := c.view.PromptHuman(humanCtx, reqCopy)
		if err != nil {
			c.logger.Warn(ctx, "human prompt failed", "request_id", requestID, "error", err)
			return nil
		}
		if ok {
			_ = c.Collect(ctx, requestID, "human", content, true)
		}
	}
	return nil
}

// Wait blocks until requestID completes, times out, or ctx is cancelled.
func (c *Channel) Wait(ctx context.Context, requestID string, timeout time.Duration) (ResponsesSnapshot, error) {
	c.mu.Lock()
	req, ok := c.active[requestID]
	if !ok {
		c.mu.Unlock()
		return ResponsesSnapshot{}, fmt.Errorf("%w: %s", massgenerr.ErrUnknownRequest, requestID)
	}
	if timeout <= 0 {
		timeout = req.Timeout
	}
	doneCh := c.done[requestID]
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-doneCh:
	case <-timer.C:
		c.mu.Lock()
		if req.Status == StatusCollecting || req.Status == StatusPending {
			req.Status = StatusTimeout
		}
		c.mu.Unlock()
	case <-ctx.Done():
		c.mu.Lock()
		if req.Status == StatusCollecting || req.Status == StatusPending {
			req.Status = StatusCancelled
		}
		c.mu.Unlock()
	}

	return c.Responses(requestID)
}

// Collect records one response. When received_count reaches
// expected_count, status becomes complete and any Wait callers are woken.
// Responses that arrive after the request has timed out or been
// cancelled are still recorded but leave its status unchanged and do not
// wake anyone.
func (c *Channel) Collect(ctx context.Context, requestID, responderID, content string, isHuman bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.active[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", massgenerr.ErrUnknownRequest, requestID)
	}

	c.responses[requestID] = append(c.responses[requestID], Response{
		RequestID:   requestID,
		ResponderID: responderID,
		Content:     content,
		At:          time.Now(),
		IsHuman:     isHuman,
	})
	req.ReceivedCount++

	if req.ReceivedCount >= req.ExpectedCount && (req.Status == StatusPending || req.Status == StatusCollecting) {
		req.Status = StatusComplete
		close(c.done[requestID])
	}
	return nil
}

// Status reports the current state of requestID.
func (c *Channel) Status(requestID string) (StatusSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.active[requestID]
	if !ok {
		return StatusSnapshot{}, fmt.Errorf("%w: %s", massgenerr.ErrUnknownRequest, requestID)
	}

	responded := make(map[string]struct{})
	for _, r := range c.responses[requestID] {
		if !r.IsHuman {
			responded[r.ResponderID] = struct{}{}
		}
	}
	var waitingFor []string
	for _, agentID := range c.view.AgentIDs() {
		if agentID == req.SenderID {
			continue
		}
		if _, ok := responded[agentID]; !ok {
			waitingFor = append(waitingFor, agentID)
		}
	}

	return StatusSnapshot{
		Status:     req.Status,
		Received:   req.ReceivedCount,
		Expected:   req.ExpectedCount,
		WaitingFor: waitingFor,
	}, nil
}

// Responses returns the status and collected responses for requestID.
func (c *Channel) Responses(requestID string) (ResponsesSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.active[requestID]
	if !ok {
		return ResponsesSnapshot{}, fmt.Errorf("%w: %s", massgenerr.ErrUnknownRequest, requestID)
	}
	out := make([]Response, len(c.responses[requestID]))
	copy(out, c.responses[requestID])
	return ResponsesSnapshot{Status: req.Status, Responses: out}, nil
}

// Cleanup removes requestID's request, responses, and completion channel.
func (c *Channel) Cleanup(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, requestID)
	delete(c.responses, requestID)
	delete(c.done, requestID)
}

// ActiveCount returns how many active broadcasts senderID currently has,
// for enforcing the per-sender broadcast bound.
func (c *Channel) ActiveCount(senderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.active {
		if r.SenderID == senderID {
			n++
		}
	}
	return n
}
