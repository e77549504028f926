// Command massgen wires a small fleet of agents, each backed by a
// provider adapter, into an Orchestrator and serves it over the
// OpenAI-compatible HTTP surface. It is a minimal wiring entry point,
// not a configuration loader or CLI framework: flags cover only what is
// needed to stand the process up.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/massgen-ai/massgen/agent"
	"github.com/massgen-ai/massgen/backend/anthropic"
	"github.com/massgen-ai/massgen/backend/openai"
	"github.com/massgen-ai/massgen/broadcast"
	"github.com/massgen-ai/massgen/display"
	"github.com/massgen-ai/massgen/hooks"
	"github.com/massgen-ai/massgen/httpapi"
	"github.com/massgen-ai/massgen/orchestrator"
	"github.com/massgen-ai/massgen/stream"
	"github.com/massgen-ai/massgen/telemetry"
	"github.com/massgen-ai/massgen/telemetry/zaplogger"
)

func main() {
	var (
		addrF        = flag.String("addr", "localhost:8090", "HTTP listen address")
		anthropicKey = flag.String("anthropic-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key")
		openaiKey    = flag.String("openai-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
		debugF       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	zlog, err := buildZapLogger(*debugF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "massgen: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()
	logger := zaplogger.New(zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := newFleetRunner(*anthropicKey, *openaiKey, logger)
	if err != nil {
		logger.Error(ctx, "failed to build agent fleet", "error", err)
		os.Exit(1)
	}

	srv := httpapi.NewHTTPServer(*addrF, runner, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", *addrF)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		logger.Info(ctx, "received signal, shutting down", "signal", sig.String())
	case err := <-errc:
		if err != nil {
			logger.Error(ctx, "server exited", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", "error", err)
	}
	cancel()
	logger.Info(ctx, "exited")
}

func buildZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// fleetRunner builds a fresh Orchestrator and agent fleet for every
// incoming chat completion request, honoring the per-request model
// override carried on ChatCompletionRequest. The path override is not
// read.
type fleetRunner struct {
	anthropicKey string
	openaiKey    string
	logger       telemetry.Logger
}

func newFleetRunner(anthropicKey, openaiKey string, logger telemetry.Logger) (*fleetRunner, error) {
	return &fleetRunner{anthropicKey: anthropicKey, openaiKey: openaiKey, logger: logger}, nil
}

// chanSink is a display.Sink that forwards every event whose payload is a
// stream.Chunk onto a channel, where Run's collector buffers it.
type chanSink struct {
	out chan httpapi.AgentChunk
}

func (s chanSink) Emit(_ context.Context, ev display.Event) error {
	if chunk, ok := ev.Payload.(stream.Chunk); ok {
		s.out <- httpapi.AgentChunk{AgentID: ev.AgentID, Chunk: chunk}
	}
	return nil
}

// Run implements httpapi.Runner: it assembles one agent per configured
// provider, wires them under a fresh Orchestrator, and drives one
// coordination turn for req. The returned chunk channel is filled and
// closed only after the run has finished, replaying every chunk in order.
func (f *fleetRunner) Run(ctx context.Context, req httpapi.ChatCompletionRequest) (orchestrator.Result, <-chan httpapi.AgentChunk, error) {
	out := make(chan httpapi.AgentChunk, 64)
	sink := chanSink{out: out}
	orch := orchestrator.New(orchestrator.Config{}, broadcast.Config{}, sink, nil, nil)
	mgr := hooks.NewManager()

	model := req.Model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}

	var backends []struct {
		id string
		b  stream.Backend
	}
	if f.anthropicKey != "" {
		c, err := anthropic.NewFromAPIKey(f.anthropicKey, anthropic.Options{Model: model})
		if err != nil {
			return orchestrator.Result{}, nil, fmt.Errorf("massgen: anthropic backend: %w", err)
		}
		backends = append(backends, struct {
			id string
			b  stream.Backend
		}{"anthropic", c})
	}
	if f.openaiKey != "" {
		c, err := openai.NewFromAPIKey(f.openaiKey, openai.Options{Model: model})
		if err != nil {
			return orchestrator.Result{}, nil, fmt.Errorf("massgen: openai backend: %w", err)
		}
		backends = append(backends, struct {
			id string
			b  stream.Backend
		}{"openai", c})
	}
	if len(backends) == 0 {
		return orchestrator.Result{}, nil, fmt.Errorf("massgen: no provider API keys configured")
	}

	for _, b := range backends {
		rt, err := agent.New(agent.Options{
			ID:          b.id,
			Backend:     b.b,
			Channel:     orch.Channel(),
			Convergence: orch,
		})
		if err != nil {
			return orchestrator.Result{}, nil, fmt.Errorf("massgen: agent %s: %w", b.id, err)
		}
		orch.AddAgent(rt)
		orchestrator.WireHooks(mgr, rt)
	}

	var messages []stream.Message
	for _, m := range req.Messages {
		messages = append(messages, stream.Message{Role: stream.Role(m.Role), Content: m.Content})
	}

	// A dedicated collector drains chanSink's writes continuously, so a
	// long run can never block on Emit waiting for the HTTP handler to
	// start reading (which only happens after this method returns).
	collected := make(chan []httpapi.AgentChunk, 1)
	go func() {
		var buf []httpapi.AgentChunk
		for c := range out {
			buf = append(buf, c)
		}
		collected <- buf
	}()

	resultc := make(chan orchestrator.Result, 1)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		result, err := orch.Run(ctx, messages)
		if err != nil {
			errc <- err
			return
		}
		resultc <- result
	}()

	var result orchestrator.Result
	select {
	case result = <-resultc:
	case err := <-errc:
		<-collected
		return orchestrator.Result{}, nil, fmt.Errorf("massgen: orchestrator run failed: %w", err)
	}

	buf := <-collected
	replay := make(chan httpapi.AgentChunk, len(buf))
	for _, c := range buf {
		replay <- c
	}
	close(replay)
	return result, replay, nil
}
