// Package observability wires OpenTelemetry metrics backed by Prometheus.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
)

// Meter holds the OpenTelemetry meter provider and session instruments.
type Meter struct {
	provider *sdkmetric.MeterProvider

	SessionCounter  metric.Int64Counter
	SessionDuration metric.Float64Histogram
	TranscriptTurns metric.Int64Counter
	ToolCallCounter metric.Int64Counter
	RealtimeLatency metric.Float64Histogram
}

// NewMeter builds a meter provider with the Prometheus exporter and
// registers the agent's OTEL instruments. The exporter publishes on the
// default Prometheus registry, so the instruments share the worker's
// /metrics endpoint.
func NewMeter(serviceName string) (*Meter, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	m := &Meter{provider: provider}

	if m.SessionCounter, err = meter.Int64Counter(
		"agent.sessions",
		metric.WithDescription("Agent call sessions started"),
	); err != nil {
		return nil, err
	}

	if m.SessionDuration, err = meter.Float64Histogram(
		"agent.session.duration",
		metric.WithDescription("Agent call session duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.TranscriptTurns, err = meter.Int64Counter(
		"agent.transcript.turns",
		metric.WithDescription("Transcript turns recorded"),
	); err != nil {
		return nil, err
	}

	if m.ToolCallCounter, err = meter.Int64Counter(
		"agent.tool.calls",
		metric.WithDescription("Function tool calls dispatched"),
	); err != nil {
		return nil, err
	}

	if m.RealtimeLatency, err = meter.Float64Histogram(
		"agent.realtime.response.latency",
		metric.WithDescription("Latency between user turn end and model response"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSession counts a finished call session and its duration. Safe on a
// nil receiver so callers without a meter need no guard.
func (m *Meter) RecordSession(ctx context.Context, agent, outcome string, duration time.Duration) {
	if m == nil || m.SessionCounter == nil {
		return
	}
	m.SessionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("outcome", outcome),
	))
	m.SessionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("agent", agent),
	))
}

// RecordTranscriptTurn counts one transcript turn by speaker role.
func (m *Meter) RecordTranscriptTurn(ctx context.Context, role string) {
	if m == nil || m.TranscriptTurns == nil {
		return
	}
	m.TranscriptTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordToolCall counts one function tool dispatch.
func (m *Meter) RecordToolCall(ctx context.Context, tool string) {
	if m == nil || m.ToolCallCounter == nil {
		return
	}
	m.ToolCallCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordResponseLatency records the gap between the end of a user turn and
// the model's spoken response.
func (m *Meter) RecordResponseLatency(ctx context.Context, latency time.Duration) {
	if m == nil || m.RealtimeLatency == nil {
		return
	}
	m.RealtimeLatency.Record(ctx, latency.Seconds())
}

// Shutdown flushes and stops the meter provider.
func (m *Meter) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
