package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/RealZimboGuy/leadflow/internal/engine"

// Metrics holds the engine counters.
type Metrics struct {
	runsStarted   metric.Int64Counter
	stepsDone     metric.Int64Counter
	messagesDone  metric.Int64Counter
	leasesExpired metric.Int64Counter
}

// NewMetrics registers the counters on provider, or on the global provider
// installed by otel.SetMeterProvider when provider is nil.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &Metrics{}
	m.runsStarted, _ = meter.Int64Counter("leadflow.runs.started", metric.WithDescription("Runs started by the trigger matcher"))
	m.stepsDone, _ = meter.Int64Counter("leadflow.steps.processed", metric.WithDescription("Steps that reached a terminal status"))
	m.messagesDone, _ = meter.Int64Counter("leadflow.outbox.processed", metric.WithDescription("Outbox messages sent or failed"))
	m.leasesExpired, _ = meter.Int64Counter("leadflow.leases.reclaimed", metric.WithDescription("Claims that took over an expired lease"))
	return m
}

func (m *Metrics) runStarted(ctx context.Context, tenantID string) {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenantID)))
}

func (m *Metrics) stepProcessed(ctx context.Context, status string) {
	if m == nil || m.stepsDone == nil {
		return
	}
	m.stepsDone.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) messageProcessed(ctx context.Context, channel, status string) {
	if m == nil || m.messagesDone == nil {
		return
	}
	m.messagesDone.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel), attribute.String("status", status)))
}

func (m *Metrics) leaseReclaimed(ctx context.Context) {
	if m == nil || m.leasesExpired == nil {
		return
	}
	m.leasesExpired.Add(ctx, 1)
}
