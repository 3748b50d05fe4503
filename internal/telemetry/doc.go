// Package telemetry sets up OpenTelemetry tracing for plains.
//
// Spans are exported over OTLP (gRPC or HTTP/protobuf) when enabled. When
// disabled, Tracer falls back to the global provider, which is a no-op
// unless something else installed one.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	engine := orchestrator.NewEngine(orchestrator.WithTracer(tel.Tracer("plains")))
//
// NewTestTelemetry records spans in memory for assertions.
package telemetry
