package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer provider and its shutdown.
//
// Export failures never fail a build; the instance reports itself degraded
// and falls back to the global provider.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	logProvider    log.LoggerProvider

	healthy  atomic.Bool
	degraded atomic.Bool
	lastErr  atomic.Value
}

// New creates a Telemetry instance. A disabled config yields a no-op instance.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	t.healthy.Store(true)
	if !cfg.Enabled {
		return t, nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	exporter := o.exporter
	if exporter == nil {
		var err error
		exporter, err = newExporter(ctx, cfg)
		if err != nil {
			t.setDegraded(err)
			return t, nil
		}
	}

	t.tracerProvider = newTracerProvider(cfg, exporter)
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// LoggerProvider returns the provider for the otelzap bridge, or nil.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider sets the provider for the otelzap bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// Shutdown flushes pending spans, bounded by the configured timeout when
// ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	defer t.healthy.Store(false)
	if t.tracerProvider == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout)
		defer cancel()
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	return nil
}

// ForceFlush exports all pending spans.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	if err := t.tracerProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("trace flush: %w", err)
	}
	return nil
}

// HealthStatus reports telemetry health.
type HealthStatus struct {
	Healthy  bool   `json:"healthy"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	h := HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
	}
	if err, ok := t.lastErr.Load().(error); ok {
		h.Error = err.Error()
	}
	return h
}

// IsEnabled reports whether export is enabled and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load() && !t.degraded.Load()
}

func (t *Telemetry) setDegraded(err error) {
	t.degraded.Store(true)
	t.lastErr.Store(err)
}
