package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callerSkip hides the level method and log from reported callers.
const callerSkip = 2

// Logger is a zap logger whose methods take a context and prepend the
// fields carried by it.
type Logger struct {
	zap    *zap.Logger
	config *Config
}

// NewLogger builds a logger writing console output to stderr. A nil
// otelProvider disables OTEL export even when configured.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	return NewLoggerTo(cfg, os.Stderr, otelProvider)
}

// NewLoggerTo is NewLogger with console output sent to w.
func NewLoggerTo(cfg *Config, w io.Writer, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	core, err := newDualCore(cfg, zapcore.Lock(zapcore.AddSync(w)), otelProvider)
	if err != nil {
		return nil, fmt.Errorf("building core: %w", err)
	}

	var opts []zap.Option
	if cfg.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(callerSkip))
	}
	if cfg.StacktraceLevel > zapcore.DebugLevel {
		opts = append(opts, zap.AddStacktrace(cfg.StacktraceLevel))
	}
	if len(cfg.Fields) > 0 {
		opts = append(opts, zap.Fields(staticFields(cfg.Fields)...))
	}

	return &Logger{zap: zap.New(core, opts...), config: cfg}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

// staticFields turns configured fields into zap fields in key order.
func staticFields(m map[string]string) []zap.Field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, len(keys))
	for i, k := range keys {
		fields[i] = zap.String(k, m[k])
	}
	return fields
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = levelEncoder(zapcore.LowercaseLevelEncoder)
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	ec.EncodeLevel = levelEncoder(zapcore.CapitalColorLevelEncoder)
	ec.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(ec)
}

// levelEncoder names TraceLevel, which zap prints as Level(-2).
func levelEncoder(next zapcore.LevelEncoder) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString("trace")
			return
		}
		next(l, enc)
	}
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(ContextFields(ctx), fields...)...)
}

// Trace logs below Debug; used for per-entry detail.
func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...), config: l.config}
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name), config: l.config}
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. EINVAL and ENOTTY from syncing a terminal
// or pipe are ignored.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying returns the wrapped zap logger.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}
