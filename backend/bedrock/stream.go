package bedrock

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/massgen-ai/massgen/stream"
)

type pendingToolCall struct {
	id        string
	name      string
	fragments []string
}

// runStream drains evStream and emits stream.Chunk values onto out,
// aggregating tool_use blocks into one ChunkToolCalls batch at
// message-stop, matching the stream.Backend contract.
func runStream(ctx context.Context, evStream *bedrockruntime.ConverseStreamEventStream, out chan<- stream.Chunk) {
	defer close(out)
	defer evStream.Close()

	pending := make(map[int32]*pendingToolCall)
	var finished []stream.ToolCall

	for event := range evStream.Events() {
		if ctx.Err() != nil {
			out <- stream.Chunk{Type: stream.ChunkError, Err: ctx.Err().Error(), Retryable: true}
			out <- stream.Chunk{Type: stream.ChunkDone}
			return
		}

		switch v := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := v.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				tc := &pendingToolCall{}
				if tu.Value.Name != nil {
					tc.name = *tu.Value.Name
				}
				if tu.Value.ToolUseId != nil {
					tc.id = *tu.Value.ToolUseId
				}
				pending[v.Value.ContentBlockIndex] = tc
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch d := v.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if d.Value != "" {
					out <- stream.Chunk{Type: stream.ChunkContent, Content: d.Value}
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if tc := pending[v.Value.ContentBlockIndex]; tc != nil && d.Value.Input != nil {
					tc.fragments = append(tc.fragments, *d.Value.Input)
				}
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			if tc := pending[v.Value.ContentBlockIndex]; tc != nil {
				args := joinFragments(tc.fragments)
				finished = append(finished, stream.ToolCall{ID: tc.id, Name: tc.name, Arguments: args})
				delete(pending, v.Value.ContentBlockIndex)
			}

		case *brtypes.ConverseStreamOutputMemberMessageStop:
			if len(finished) > 0 {
				out <- stream.Chunk{Type: stream.ChunkToolCalls, ToolCalls: finished}
			}
		}
	}

	if err := evStream.Err(); err != nil {
		out <- stream.Chunk{Type: stream.ChunkError, Err: err.Error(), Retryable: true}
	}
	out <- stream.Chunk{Type: stream.ChunkDone}
}

func joinFragments(frags []string) string {
	if len(frags) == 0 {
		return "{}"
	}
	out := ""
	for _, f := range frags {
		out += f
	}
	if out == "" {
		return "{}"
	}
	var probe json.RawMessage
	if json.Unmarshal([]byte(out), &probe) != nil {
		return "{}"
	}
	return out
}
