package di

import (
	"bytes"
	"context"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/wirekit/config"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
)

func sumMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected int64 sum, got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestScope_RecordsTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	inst, err := observability.NewInstruments(tp, mp)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	s, err := New(config.Default(), WithLogger(logger.Nop()), WithInstruments(inst))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	mustRegister(t, s, Constructor(newMemRepo))
	ctx := context.Background()

	MustResolve[*memRepo](ctx, s)
	MustResolve[*memRepo](ctx, s)
	_, _ = Resolve[*sqlRepo](ctx, s)
	child, _ := s.BeginScope()
	_ = child.Close()

	if got := sumMetric(t, reader, observability.MetricResolveTotal); got != 3 {
		t.Errorf("resolve total = %d, want 3", got)
	}
	if got := sumMetric(t, reader, observability.MetricPlanCompiled); got != 1 {
		t.Errorf("plans compiled = %d, want 1", got)
	}
	if got := sumMetric(t, reader, observability.MetricPlanCache); got != 2 {
		t.Errorf("cache lookups = %d, want 2", got)
	}
	if got := sumMetric(t, reader, observability.MetricScopeActive); got != 1 {
		t.Errorf("active scopes = %d, want 1", got)
	}

	spans := map[string]int{}
	for _, sp := range recorder.Ended() {
		spans[sp.Name()]++
	}
	if spans[observability.SpanResolve] != 3 || spans[observability.SpanCompile] != 2 || spans[observability.SpanDispose] != 1 {
		t.Errorf("unexpected spans %v", spans)
	}
}

func TestScope_LogsRegistrations(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "wirekit-test", &buf)
	s, err := New(nil, WithLogger(log), WithInstruments(observability.Nop()), WithName("app"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	mustRegister(t, s, Constructor(newMemRepo, WithLifestyle(Singleton)))

	out := buf.String()
	if !strings.Contains(out, "export registered") || !strings.Contains(out, `"lifestyle":"singleton"`) {
		t.Errorf("missing registration log: %s", out)
	}
	if !strings.Contains(out, `"component":"wirekit.di"`) {
		t.Errorf("missing component field: %s", out)
	}
}
