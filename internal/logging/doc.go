// Package logging provides structured logging for plains.
//
// # Overview
//
// Logging wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Console or JSON output, optionally teed into OpenTelemetry
//   - Automatic context field injection (trace_id, run.id, task.name, task.phase)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithTask(ctx, "styles")
//	logger.Info(ctx, "entries resolved", zap.Int("count", n))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "stack created", zap.String("stack", "styles"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "stack created")
//	tl.AssertField(t, "stack created", "stack", "styles")
//
// Logger is safe for concurrent use. Child loggers (With, Named) do not
// affect their parent.
package logging
