package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if name := TaskFromContext(ctx); name != "" {
		fields = append(fields, zap.String("task.name", name))
	}
	if phase := PhaseFromContext(ctx); phase != "" {
		fields = append(fields, zap.String("task.phase", phase))
	}

	return fields
}

type runCtxKey struct{}
type taskCtxKey struct{}
type phaseCtxKey struct{}

// WithRunID tags ctx with the id of one publish cycle.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the publish cycle id from context.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithTask tags ctx with the subscription currently executing.
func WithTask(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, name)
}

// TaskFromContext extracts the executing subscription name from context.
func TaskFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(taskCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithPhase tags ctx with the lifecycle phase currently executing.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseCtxKey{}, phase)
}

// PhaseFromContext extracts the executing lifecycle phase from context.
func PhaseFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(phaseCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
