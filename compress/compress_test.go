package compress_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/compress"
	"github.com/massgen-ai/massgen/stream"
)

func longConversation(pairs int) []stream.Message {
	msgs := []stream.Message{{Role: stream.RoleSystem, Content: "you are a helpful agent"}}
	for i := 0; i < pairs; i++ {
		msgs = append(msgs,
			stream.Message{Role: stream.RoleUser, Content: strings.Repeat("question ", 200)},
			stream.Message{Role: stream.RoleAssistant, Content: strings.Repeat("answer ", 200)},
		)
	}
	return msgs
}

func TestShouldCompress_BelowThreshold(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{})
	msgs := []stream.Message{{Role: stream.RoleUser, Content: "hi"}}
	require.False(t, c.ShouldCompress(msgs, 100000))
}

func TestShouldCompress_AtOrAboveThreshold(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{})
	msgs := longConversation(50)
	require.True(t, c.ShouldCompress(msgs, 1000))
}

func TestShouldCompress_NoContextWindow(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{})
	require.False(t, c.ShouldCompress(longConversation(50), 0))
}

func TestCompress_KeepsSystemPrefixAndTail(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{TailKeep: 2, Target: 0.05})
	msgs := longConversation(20)

	result := c.Compress(context.Background(), msgs, 100000)

	require.NotEmpty(t, result.Messages)
	require.Equal(t, stream.RoleSystem, result.Messages[0].Role)
	require.Equal(t, "you are a helpful agent", result.Messages[0].Content)

	tail := result.Messages[len(result.Messages)-2:]
	require.Equal(t, stream.RoleUser, tail[0].Role)
	require.Equal(t, stream.RoleAssistant, tail[1].Role)

	var sawCompacting, sawTerminal bool
	for _, s := range result.Statuses {
		switch s.CompressionStatus {
		case stream.CompressionCompacting:
			sawCompacting = true
		case stream.CompressionCompacted, stream.CompressionFailed:
			sawTerminal = true
		}
	}
	require.True(t, sawCompacting)
	require.True(t, sawTerminal)
}

func TestCompress_KeptNeverExceedsTailKeep(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{TailKeep: 10, Target: 0.01})
	result := c.Compress(context.Background(), longConversation(10), 5000)

	require.LessOrEqual(t, result.Kept, 10)
}

func TestCompress_FailsWhenTargetUnreachable(t *testing.T) {
	t.Parallel()

	c := compress.New(compress.Options{TailKeep: 1, Target: 0.0000001})
	result := c.Compress(context.Background(), longConversation(1), 10)

	require.Equal(t, stream.CompressionFailed, result.Status)
	require.Equal(t, 0, result.Kept)
}

func TestDefaultSummarizer_TruncatesLongContent(t *testing.T) {
	t.Parallel()

	dropped := []stream.Message{{Role: stream.RoleUser, Content: strings.Repeat("x", 500)}}
	summary := compress.DefaultSummarizer(dropped)

	require.Contains(t, summary, compress.Sentinel)
	require.Contains(t, summary, "…")
}
