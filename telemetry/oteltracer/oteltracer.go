// Package oteltracer backs telemetry.Tracer with the OpenTelemetry tracing
// API.
package oteltracer

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/massgen-ai/massgen/telemetry"
)

type tracer struct {
	t otelTrace.Tracer
}

// New wraps an otel trace.Tracer as a telemetry.Tracer.
func New(t otelTrace.Tracer) telemetry.Tracer {
	return &tracer{t: t}
}

func (tr *tracer) Start(ctx context.Context, name string, opts ...otelTrace.SpanStartOption) (context.Context, telemetry.Span) {
	ctx, span := tr.t.Start(ctx, name, opts...)
	return ctx, &spanWrapper{span: span}
}

type spanWrapper struct {
	span otelTrace.Span
}

func (s *spanWrapper) End(opts ...otelTrace.SpanEndOption) { s.span.End(opts...) }

func (s *spanWrapper) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name)
}

func (s *spanWrapper) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *spanWrapper) RecordError(err error, opts ...otelTrace.EventOption) {
	s.span.RecordError(err, opts...)
}
