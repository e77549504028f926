package oteltracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	noop "go.opentelemetry.io/otel/trace/noop"

	"github.com/massgen-ai/massgen/telemetry/oteltracer"
)

func TestTracer_StartReturnsUsableSpan(t *testing.T) {
	t.Parallel()

	tracer := oteltracer.New(noop.NewTracerProvider().Tracer("massgen"))

	ctx, span := tracer.Start(context.Background(), "agent.run")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	require.NotPanics(t, func() {
		span.AddEvent("tool_call_started")
		span.SetStatus(codes.Error, "boom")
		span.RecordError(errors.New("boom"))
		span.End()
	})
}
