package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/massgen-ai/massgen/stream"
)

// anthropicStream narrows ssestream.Stream to the four methods this
// adapter needs, keeping the ssestream type out of the exported
// MessagesClient interface.
type anthropicStream struct {
	raw *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *anthropicStream) Err() error                          { return s.raw.Err() }
func (s *anthropicStream) Next() bool                          { return s.raw.Next() }
func (s *anthropicStream) Current() sdk.MessageStreamEventUnion { return s.raw.Current() }
func (s *anthropicStream) Close() error                        { return s.raw.Close() }

type pendingToolCall struct {
	id        string
	name      string
	fragments []string
}

// runStream drains st and emits stream.Chunk values onto out, aggregating
// tool_use blocks into one ChunkToolCalls batch at message stop, matching
// the stream.Backend contract that tool calls end the turn.
func runStream(ctx context.Context, st *anthropicStream, out chan<- stream.Chunk) {
	defer close(out)
	defer st.Close()

	var pending map[int]*pendingToolCall
	var finished []stream.ToolCall

	for st.Next() {
		if ctx.Err() != nil {
			out <- stream.Chunk{Type: stream.ChunkError, Err: ctx.Err().Error(), Retryable: true}
			out <- stream.Chunk{Type: stream.ChunkDone}
			return
		}

		event := st.Current()
		switch ev := event.AsAny().(type) {
		case sdk.MessageStartEvent:
			pending = make(map[int]*pendingToolCall)
			finished = nil

		case sdk.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				pending[int(ev.Index)] = &pendingToolCall{id: toolUse.ID, name: toolUse.Name}
			}

		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					out <- stream.Chunk{Type: stream.ChunkContent, Content: delta.Text}
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" {
					out <- stream.Chunk{Type: stream.ChunkReasoning, Content: delta.Thinking}
				}
			case sdk.InputJSONDelta:
				if tc := pending[int(ev.Index)]; tc != nil && delta.PartialJSON != "" {
					tc.fragments = append(tc.fragments, delta.PartialJSON)
				}
			}

		case sdk.ContentBlockStopEvent:
			if tc := pending[int(ev.Index)]; tc != nil {
				args := strings.Join(tc.fragments, "")
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				finished = append(finished, stream.ToolCall{ID: tc.id, Name: tc.name, Arguments: args})
				delete(pending, int(ev.Index))
			}

		case sdk.MessageStopEvent:
			if len(finished) > 0 {
				out <- stream.Chunk{Type: stream.ChunkToolCalls, ToolCalls: finished}
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
