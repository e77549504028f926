package compress_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/massgen-ai/massgen/compress"
	"github.com/massgen-ai/massgen/stream"
)

// TestCompressPreservesTailProperty checks that compression never alters
// the verbatim tail pairs it decides to keep: for any conversation length
// and any tail-keep size, the kept suffix of the compressed output is
// byte-identical to the original suffix.
func TestCompressPreservesTailProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("kept tail matches the original conversation verbatim", prop.ForAll(
		func(pairs, tailKeep int) bool {
			msgs := longConversation(pairs)
			c := compress.New(compress.Options{TailKeep: tailKeep, Target: 0.3})
			result := c.Compress(context.Background(), msgs, 4000)

			if result.Kept == 0 {
				return true
			}
			want := lastNPairsRaw(msgs, result.Kept)
			got := result.Messages[len(result.Messages)-len(want):]
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 10),
	))

	properties.Property("compressed output never grows the message count beyond the original", prop.ForAll(
		func(pairs int) bool {
			msgs := longConversation(pairs)
			c := compress.New(compress.Options{Target: 0.3})
			result := c.Compress(context.Background(), msgs, 4000)
			return len(result.Messages) <= len(msgs)+1 // +1 for the synthetic summary message
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func lastNPairsRaw(messages []stream.Message, n int) []stream.Message {
	pairsSeen := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == stream.RoleUser {
			pairsSeen++
			start = i
			if pairsSeen == n {
				break
			}
		}
	}
	out := make([]stream.Message, len(messages[start:]))
	copy(out, messages[start:])
	return out
}
