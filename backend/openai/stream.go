package openai

import (
	"context"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/massgen-ai/massgen/stream"
)

type pendingToolCall struct {
	id   string
	name string
	args string
}

// runStream drains st and emits stream.Chunk values onto out, accumulating
// tool-call deltas (which OpenAI streams incrementally per-index) into one
// ChunkToolCalls batch at the chunk carrying finish_reason.
func runStream(ctx context.Context, st *ssestream.Stream[oai.ChatCompletionChunk], out chan<- stream.Chunk) {
	defer close(out)

	pending := make(map[int64]*pendingToolCall)

	for st.Next() {
		if ctx.Err() != nil {
			out <- stream.Chunk{Type: stream.ChunkError, Err: ctx.Err().Error(), Retryable: true}
			out <- stream.Chunk{Type: stream.ChunkDone}
			return
		}

		chunk := st.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			out <- stream.Chunk{Type: stream.ChunkContent, Content: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			p := pending[tc.Index]
			if p == nil {
				p = &pendingToolCall{}
				pending[tc.Index] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args += tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			if len(pending) > 0 {
				calls := make([]stream.ToolCall, 0, len(pending))
				for i := int64(0); i < int64(len(pending)); i++ {
					if p := pending[i]; p != nil {
						args := p.args
						if args == "" {
							args = "{}"
						}
						calls = append(calls, stream.ToolCall{ID: p.id, Name: p.name, Arguments: args})
					}
				}
				out <- stream.Chunk{Type: stream.ChunkToolCalls, ToolCalls: calls}
			}
			out <- stream.Chunk{Type: stream.ChunkDone}
			return
		}
	}

	if err := st.Err(); err != nil {
		out <- stream.Chunk{Type: stream.ChunkError, Err: err.Error(), Retryable: true}
	}
	out <- stream.Chunk{Type: stream.ChunkDone}
}
