// Package observability provides OpenTelemetry tracing and metrics for the
// wirekit engine.
//
// The engine records through an *Instruments value. By default it is built
// from the otel global providers, so nothing is exported until a host
// installs real providers:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("orders"))
//	defer tp.Shutdown(ctx)
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("orders"))
//	defer mp.Shutdown(ctx)
//
// Health Checks:
//
//	health := observability.NewServiceHealth("orders", "1.0.0")
//	health.AddComponent(root.CheckHealth(ctx))
package observability
