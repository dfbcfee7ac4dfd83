// Package telemetry wires OpenTelemetry metrics into the core.Telemetry
// capability, adapted from the teacher's telemetry module's instrument
// cache: counters and histograms are created lazily and cached by name so
// every package (resilience, tools, executor, routing) can call
// RecordMetric without pre-registering instruments.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftline/browserpilot/core"
)

// Instruments caches OTel metric instruments by name, avoiding repeated
// meter.Float64Counter / Float64Histogram lookups on the hot path.
type Instruments struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewInstruments creates an instrument cache bound to meterName.
func NewInstruments(meterName string) *Instruments {
	return &Instruments{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (in *Instruments) counter(name string) metric.Float64Counter {
	in.mu.RLock()
	c, ok := in.counters[name]
	in.mu.RUnlock()
	if ok {
		return c
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if c, ok = in.counters[name]; ok {
		return c
	}
	c, _ = in.meter.Float64Counter(name)
	in.counters[name] = c
	return c
}

func (in *Instruments) histogram(name string) metric.Float64Histogram {
	in.mu.RLock()
	h, ok := in.histograms[name]
	in.mu.RUnlock()
	if ok {
		return h
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if h, ok = in.histograms[name]; ok {
		return h
	}
	h, _ = in.meter.Float64Histogram(name)
	in.histograms[name] = h
	return h
}

// toAttrs converts a string-label map into OTel attributes.
func toAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// OTel is a core.Telemetry implementation backed by the global OpenTelemetry
// SDK (whatever the host process configured via otel.SetMeterProvider /
// SetTracerProvider; a no-op provider is used if the host configured none).
type OTel struct {
	instruments *Instruments
	tracerName  string
}

// New creates an OTel-backed Telemetry for the given logical module name
// (e.g. "browserpilot/tools", "browserpilot/resilience").
func New(moduleName string) *OTel {
	return &OTel{
		instruments: NewInstruments(moduleName),
		tracerName:  moduleName,
	}
}

func (o *OTel) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := otel.Tracer(o.tracerName).Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records a counter-style metric; durations are recorded
// separately via RecordDuration so they land in a histogram instead.
func (o *OTel) RecordMetric(name string, value float64, labels map[string]string) {
	o.instruments.counter(name).Add(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

// RecordDuration records a duration-valued histogram, in milliseconds.
func (o *OTel) RecordDuration(name string, ms float64, labels map[string]string) {
	o.instruments.histogram(name).Record(context.Background(), ms, metric.WithAttributes(toAttrs(labels)...))
}

// otelSpan adapts trace.Span to the module's minimal core.Span interface.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(interface{ String() string }); ok {
		return str.String()
	}
	return ""
}
