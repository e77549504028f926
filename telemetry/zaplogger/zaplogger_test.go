package zaplogger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/massgen-ai/massgen/telemetry/zaplogger"
)

func TestNew_NilZapFallsBackToNop(t *testing.T) {
	t.Parallel()

	logger := zaplogger.New(nil)
	require.NotPanics(t, func() {
		logger.Info(context.Background(), "hello")
	})
}

func TestLogger_ForwardsMessageAndFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplogger.New(zap.New(core))

	logger.Info(context.Background(), "agent started", "agent_id", "agent-a", "restarts", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "agent started", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)

	ctxMap := entries[0].ContextMap()
	require.Equal(t, "agent-a", ctxMap["agent_id"])
}

func TestLogger_OddKeyvalsDropsTrailingKey(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplogger.New(zap.New(core))

	logger.Warn(context.Background(), "partial", "orphan_key")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Empty(t, entries[0].Context)
}

func TestLogger_LevelsRouteCorrectly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplogger.New(zap.New(core))

	logger.Debug(context.Background(), "d")
	logger.Info(context.Background(), "i")
	logger.Warn(context.Background(), "w")
	logger.Error(context.Background(), "e")

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}
