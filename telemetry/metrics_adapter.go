package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/resilience"
)

// otelMetrics adapts an Instruments cache to resilience.MetricsCollector,
// so every circuit breaker in the module (one per routing backend) reports
// state transitions and outcome counts through the
// same OTel meter as everything else.
type otelMetrics struct {
	instruments *Instruments
}

var _ resilience.MetricsCollector = (*otelMetrics)(nil)

// CircuitBreakerMetrics returns the resilience.MetricsCollector backed by
// this OTel instance's instrument cache, for wiring into
// resilience.Config.Metrics.
func (o *OTel) CircuitBreakerMetrics() resilience.MetricsCollector {
	return &otelMetrics{instruments: o.instruments}
}

func (m *otelMetrics) RecordSuccess(name string) {
	m.instruments.counter("circuit_breaker.success").Add(context.Background(), 1,
		metric.WithAttributes(toAttrs(map[string]string{"name": name})...))
}

func (m *otelMetrics) RecordFailure(name string, kind core.ErrorKind) {
	m.instruments.counter("circuit_breaker.failure").Add(context.Background(), 1,
		metric.WithAttributes(toAttrs(map[string]string{"name": name, "kind": string(kind)})...))
}

func (m *otelMetrics) RecordStateChange(name string, from, to resilience.CircuitState) {
	m.instruments.counter("circuit_breaker.state_change").Add(context.Background(), 1,
		metric.WithAttributes(toAttrs(map[string]string{"name": name, "transition": from.String() + "->" + to.String()})...))
}

func (m *otelMetrics) RecordRejection(name string) {
	m.instruments.counter("circuit_breaker.rejection").Add(context.Background(), 1,
		metric.WithAttributes(toAttrs(map[string]string{"name": name})...))
}
