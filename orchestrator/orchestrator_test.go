package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/agent"
	"github.com/massgen-ai/massgen/broadcast"
	"github.com/massgen-ai/massgen/display"
	"github.com/massgen-ai/massgen/orchestrator"
	"github.com/massgen-ai/massgen/stream"
)

// blockingBackend never produces a chunk until unblock is closed or ctx is
// cancelled, so a pumpAgent goroutine driven by it sits idle while a test
// drives convergence through the orchestrator's exported API directly.
type blockingBackend struct {
	unblock chan struct{}
}

func (b *blockingBackend) Stream(ctx context.Context, _ []stream.Message, _ []stream.ToolSpec, _ stream.Params) (<-chan stream.Chunk, error) {
	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
		case <-b.unblock:
		}
	}()
	return out, nil
}

func (b *blockingBackend) SetGeneralHookManager(any) {}

func newBlockedAgent(t *testing.T, id string, o *orchestrator.Orchestrator) *agent.AgentRuntime {
	t.Helper()
	backend := &blockingBackend{unblock: make(chan struct{})}
	t.Cleanup(func() { close(backend.unblock) })
	rt, err := agent.New(agent.Options{ID: id, Backend: backend, Convergence: o})
	require.NoError(t, err)
	return rt
}

func TestOrchestrator_ConvergesOnUnanimousVote(t *testing.T) {
	t.Parallel()

	sink := display.NewMemSink()
	o := orchestrator.New(orchestrator.Config{}, broadcast.Config{}, sink, nil, nil)

	rtA := newBlockedAgent(t, "agent-a", o)
	rtB := newBlockedAgent(t, "agent-b", o)
	o.AddAgent(rtA)
	o.AddAgent(rtB)

	require.NoError(t, o.NewAnswer(context.Background(), "agent-a", "42"))
	require.NoError(t, o.Vote(context.Background(), "agent-a", "agent-a", "confident"))
	require.NoError(t, o.Vote(context.Background(), "agent-b", "agent-a", "agree"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "agent-a", result.WinnerID)
	require.Equal(t, "42", result.Answer)

	var sawFinal bool
	for _, ev := range sink.Events() {
		if ev.Kind == display.KindFinalAnswer {
			sawFinal = true
		}
	}
	require.True(t, sawFinal)
}

func TestOrchestrator_VoteForNonParticipantRejected(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{}, broadcast.Config{}, nil, nil, nil)
	rtA := newBlockedAgent(t, "agent-a", o)
	o.AddAgent(rtA)

	err := o.Vote(context.Background(), "agent-a", "ghost", "reason")
	require.Error(t, err)
}

func TestOrchestrator_NewAnswerBeyondMaxIsRejected(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{MaxNewAnswersPerAgent: 1}, broadcast.Config{}, nil, nil, nil)
	rtA := newBlockedAgent(t, "agent-a", o)
	o.AddAgent(rtA)

	require.NoError(t, o.NewAnswer(context.Background(), "agent-a", "first"))
	before := rtA.Snapshot()

	err := o.NewAnswer(context.Background(), "agent-a", "second")
	require.Error(t, err)

	after := rtA.Snapshot()
	require.Equal(t, before.AnswerCount, after.AnswerCount)
	require.Equal(t, before.CurrentAnswer, after.CurrentAnswer)
	require.Equal(t, before.Status, after.Status)
}

func TestOrchestrator_NewAnswerFailingNoveltyIsRejectedWithoutMutation(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{MaxNewAnswersPerAgent: 3}, broadcast.Config{}, nil, nil, nil)
	rtA := newBlockedAgent(t, "agent-a", o)
	o.AddAgent(rtA)

	require.NoError(t, o.NewAnswer(context.Background(), "agent-a", "the answer is 42"))
	before := rtA.Snapshot()

	// Same content modulo whitespace: fails the default novelty check.
	err := o.NewAnswer(context.Background(), "agent-a", "the   answer is 42")
	require.Error(t, err)

	after := rtA.Snapshot()
	require.Equal(t, before.AnswerCount, after.AnswerCount)
	require.Equal(t, before.CurrentAnswer, after.CurrentAnswer)
	require.Equal(t, before.AnswerAt, after.AnswerAt)
}

func TestOrchestrator_SetNoveltyCheckerOverridesDefault(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{MaxNewAnswersPerAgent: 3}, broadcast.Config{}, nil, nil, nil)
	o.SetNoveltyChecker(func(string, string, float64) bool { return false })
	rtA := newBlockedAgent(t, "agent-a", o)
	o.AddAgent(rtA)

	require.NoError(t, o.NewAnswer(context.Background(), "agent-a", "first"))
	err := o.NewAnswer(context.Background(), "agent-a", "a completely different answer")
	require.Error(t, err)
}

func TestOrchestrator_RunWithNoAgentsErrors(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{}, broadcast.Config{}, nil, nil, nil)
	_, err := o.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestOrchestrator_RunTimesOutWithoutConvergence(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Config{}, broadcast.Config{}, nil, nil, nil)
	rtA := newBlockedAgent(t, "agent-a", o)
	o.AddAgent(rtA)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Run(ctx, nil)
	require.Error(t, err)
}
