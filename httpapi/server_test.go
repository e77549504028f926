package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/httpapi"
	"github.com/massgen-ai/massgen/orchestrator"
	"github.com/massgen-ai/massgen/stream"
)

type fakeRunner struct {
	result orchestrator.Result
	chunks []httpapi.AgentChunk
	err    error

	gotReq httpapi.ChatCompletionRequest
}

func (f *fakeRunner) Run(_ context.Context, req httpapi.ChatCompletionRequest) (orchestrator.Result, <-chan httpapi.AgentChunk, error) {
	f.gotReq = req
	if f.err != nil {
		return orchestrator.Result{}, nil, f.err
	}
	ch := make(chan httpapi.AgentChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return f.result, ch, nil
}

func TestHandleChatCompletions_RejectsNonPost(t *testing.T) {
	t.Parallel()

	srv := httpapi.New(&fakeRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleChatCompletions_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httpapi.New(&fakeRunner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Contains(t, body, "error")
}

func TestHandleChatCompletions_RejectsReservedToolName(t *testing.T) {
	t.Parallel()

	srv := httpapi.New(&fakeRunner{}, nil)

	payload := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"tools":[{"type":"function","function":{"name":"vote"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatCompletions_ParsesPathAndModelOverrideHeaders(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: orchestrator.Result{WinnerID: "agent-a", Answer: "42"}}
	srv := httpapi.New(runner, nil)

	payload := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(payload))
	req.Header.Set("X-Massgen-Path", "massgen/path:research")
	req.Header.Set("X-Massgen-Model", "massgen/model:gpt-4o-mini")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "research", runner.gotReq.PathOverride)
	require.Equal(t, "gpt-4o-mini", runner.gotReq.ModelOverride)
}

func TestHandleChatCompletions_NonStreamingWritesFinalAnswer(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: orchestrator.Result{WinnerID: "agent-a", Answer: "the answer"}}
	srv := httpapi.New(runner, nil)

	payload := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "agent-a", body["id"])
	choices, ok := body["choices"].([]any)
	require.True(t, ok)
	require.Len(t, choices, 1)
}

func TestHandleChatCompletions_StreamingEmitsSSEFramesAndDone(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		result: orchestrator.Result{WinnerID: "agent-a", Answer: "the answer"},
		chunks: []httpapi.AgentChunk{
			{AgentID: "agent-a", Chunk: stream.Chunk{Type: stream.ChunkContent, Content: "hel"}},
			{AgentID: "agent-a", Chunk: stream.Chunk{Type: stream.ChunkContent, Content: "lo"}},
		},
	}
	srv := httpapi.New(runner, nil)

	payload := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	require.Contains(t, body, `"content":"hel"`)
	require.Contains(t, body, `"content":"lo"`)
	require.Contains(t, body, "data: [DONE]")
}

func TestHandleChatCompletions_RunnerErrorYields500(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: context.DeadlineExceeded}
	srv := httpapi.New(runner, nil)

	payload := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNewHTTPServer_SetsAddrAndHandler(t *testing.T) {
	t.Parallel()

	s := httpapi.NewHTTPServer(":9999", &fakeRunner{}, nil)
	require.Equal(t, ":9999", s.Addr)
	require.NotNil(t, s.Handler)
}
