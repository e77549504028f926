package massgenerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/massgenerr"
)

func TestToolErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := &massgenerr.ToolError{ToolName: "search", Err: inner}

	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "search")
}

func TestProviderErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("rate limited")
	err := &massgenerr.ProviderError{Kind: "provider-transient", Retryable: true, Err: inner}

	require.ErrorIs(t, err, inner)
	require.True(t, err.Retryable)
}

func TestPendingBroadcastErrorMessage(t *testing.T) {
	t.Parallel()

	err := &massgenerr.PendingBroadcastError{PendingSenderID: "agent-a", PendingQuestion: "why?"}
	require.Contains(t, err.Error(), "agent-a")
	require.Contains(t, err.Error(), "respond_to_broadcast")
}

func TestSentinelsAreDistinct(t *testing.T) {
	t.Parallel()

	require.False(t, errors.Is(massgenerr.ErrCancelled, massgenerr.ErrConfiguration))
	require.False(t, errors.Is(massgenerr.ErrUnknownRequest, massgenerr.ErrCancelled))
}
