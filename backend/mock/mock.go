// Package mock provides a deterministic stream.Backend for tests: it
// replays a scripted sequence of chunks without making any network call.
package mock

import (
	"context"

	"github.com/massgen-ai/massgen/stream"
)

// Backend replays Script once per Stream call, ignoring messages/tools/
// params. Calls is incremented on every invocation so tests can assert how
// many turns ran.
type Backend struct {
	Script []stream.Chunk
	Calls  int

	hookMgr any
}

// New returns a Backend that replays script on every Stream call.
func New(script []stream.Chunk) *Backend {
	return &Backend{Script: script}
}

func (b *Backend) SetGeneralHookManager(mgr any) { b.hookMgr = mgr }

// Stream ignores its arguments and replays b.Script, honoring ctx
// cancellation between chunks.
func (b *Backend) Stream(ctx context.Context, _ []stream.Message, _ []stream.ToolSpec, _ stream.Params) (<-chan stream.Chunk, error) {
	b.Calls++
	out := make(chan stream.Chunk, len(b.Script)+1)
	go func() {
		defer close(out)
		for _, c := range b.Script {
			select {
			case <-ctx.Done():
				out <- stream.Chunk{Type: stream.ChunkError, Err: ctx.Err().Error(), Retryable: true}
				out <- stream.Chunk{Type: stream.ChunkDone}
				return
			case out <- c:
			}
		}
	}()
	return out, nil
}
