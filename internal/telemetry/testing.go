package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is an enabled Telemetry whose spans stay in memory.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
}

// NewTestTelemetry creates telemetry backed by a span recorder. Spans are
// recorded synchronously when they end.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	rec := tracetest.NewSpanRecorder()
	tel := &Telemetry{
		config:         cfg,
		tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(rec)),
	}
	tel.healthy.Store(true)
	return &TestTelemetry{Telemetry: tel, SpanRecorder: rec}
}

// Spans returns the ended spans in end order.
func (t *TestTelemetry) Spans() []trace.ReadOnlySpan {
	return t.SpanRecorder.Ended()
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) != nil {
		return
	}
	tb.Errorf("no span %q; ended spans: %v", name, t.spanNames())
}

// spanNames returns the names of the ended spans in end order.
func (t *TestTelemetry) spanNames() []string {
	var names []string
	for _, s := range t.Spans() {
		names = append(names, s.Name())
	}
	return names
}

// AssertSpanAttribute fails tb unless the first span called spanName
// carries key with value expected. Integers compare as int64.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, expected any) {
	tb.Helper()
	s := t.SpanByName(spanName)
	if s == nil {
		tb.Fatalf("no span %q", spanName)
	}
	set := attribute.NewSet(s.Attributes()...)
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		tb.Errorf("span %q has no attribute %q", spanName, key)
		return
	}
	if got := v.AsInterface(); got != expected {
		tb.Errorf("span %q attribute %q = %v (%T), want %v (%T)", spanName, key, got, got, expected, expected)
	}
}
