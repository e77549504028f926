// Package otelmetrics backs telemetry.Metrics with the OpenTelemetry
// metrics API.
package otelmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/massgen-ai/massgen/telemetry"
)

type metrics struct {
	meter metric.Meter
}

// New wraps an otel metric.Meter as a telemetry.Metrics.
func New(meter metric.Meter) telemetry.Metrics {
	return &metrics{meter: meter}
}

func attrs(tags []string) []attribute.KeyValue {
	kv := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		kv = append(kv, attribute.String(tags[i], tags[i+1]))
	}
	return kv
}

func (m *metrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(attrs(tags)...))
}

func (m *metrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		return
	}
	h.Record(context.Background(), float64(duration.Milliseconds()), metric.WithAttributes(attrs(tags)...))
}

func (m *metrics) RecordGauge(name string, value float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(attrs(tags)...))
}
