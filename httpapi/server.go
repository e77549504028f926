// Package httpapi exposes the coordination kernel through an
// OpenAI-compatible HTTP surface: POST /v1/chat/completions, with
// streaming responses framed as Server-Sent Events when the caller sets
// "stream": true.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/massgen-ai/massgen/orchestrator"
	"github.com/massgen-ai/massgen/stream"
	"github.com/massgen-ai/massgen/telemetry"
	"github.com/massgen-ai/massgen/toolschema"
)

// Runner starts one coordination run for a chat completion request and
// returns its outcome. Implementations typically assemble an
// orchestrator.Orchestrator from the request's model/path overrides.
type Runner interface {
	Run(ctx context.Context, req ChatCompletionRequest) (orchestrator.Result, <-chan AgentChunk, error)
}

// AgentChunk tags one stream.Chunk with the agent that produced it, for
// fanning a run's partial output out over SSE.
type AgentChunk struct {
	AgentID string
	Chunk   stream.Chunk
}

// ChatCompletionRequest is the OpenAI-compatible request body. Fields
// outside the Chat Completions surface (PathOverride, ModelOverride) are
// read from request headers, not the JSON body.
type ChatCompletionRequest struct {
	Model    string              `json:"model"`
	Messages []ChatMessage       `json:"messages"`
	Stream   bool                `json:"stream"`
	Tools    []ChatCompletionTool `json:"tools,omitempty"`

	// PathOverride and ModelOverride come from the X-Massgen-Path and
	// X-Massgen-Model request headers (with an optional "massgen/path:" or
	// "massgen/model:" prefix stripped), not the JSON body, letting
	// OpenAI-client callers route a request at a finer granularity than
	// the single "model" field allows.
	PathOverride  string `json:"-"`
	ModelOverride string `json:"-"`
}

// ChatMessage mirrors the OpenAI Chat Completions message shape.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionTool mirrors the OpenAI Chat Completions tool shape.
type ChatCompletionTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func (t ChatCompletionTool) toToolSpec() stream.ToolSpec {
	return stream.ToolSpec{Name: t.Function.Name, Description: t.Function.Description, Schema: t.Function.Parameters}
}

// Server serves the OpenAI-compatible HTTP surface.
type Server struct {
	runner Runner
	logger telemetry.Logger
	mux    *http.ServeMux
}

// New builds a Server backed by runner.
func New(runner Runner, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Server{runner: runner, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// NewHTTPServer wraps Server in an *http.Server whose only timeout is a
// 60-second ReadHeaderTimeout.
func NewHTTPServer(addr string, runner Runner, logger telemetry.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           New(runner, logger),
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req.PathOverride = strings.TrimPrefix(r.Header.Get("X-Massgen-Path"), "massgen/path:")
	req.ModelOverride = strings.TrimPrefix(r.Header.Get("X-Massgen-Model"), "massgen/model:")

	var tools []stream.ToolSpec
	for _, t := range req.Tools {
		tools = append(tools, t.toToolSpec())
	}
	if err := toolschema.CheckCollisions(tools); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, chunks, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Stream {
		s.streamSSE(w, r.Context(), chunks)
		return
	}

	s.writeNonStreaming(w, result)
}

func (s *Server) streamSSE(w http.ResponseWriter, ctx context.Context, chunks <-chan AgentChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by this response writer")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			return
		case ac, ok := <-chunks:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
			b, err := json.Marshal(toSSEEvent(ac))
			if err != nil {
				s.logger.Warn(ctx, "failed to encode sse event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (s *Server) writeNonStreaming(w http.ResponseWriter, result orchestrator.Result) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      result.WinnerID,
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": result.Answer}, "finish_reason": "stop"}},
	})
}

func toSSEEvent(ac AgentChunk) map[string]any {
	return map[string]any{
		"object": "chat.completion.chunk",
		"agent":  ac.AgentID,
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": ac.Chunk.Content},
		}},
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": msg}})
}
