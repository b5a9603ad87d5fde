package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/wirekit/errors"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetricsNoop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	// Should not panic
	ctx := context.Background()
	metrics.RecordResolve(ctx, "*app.Service", StatusOK, time.Millisecond)
	metrics.RecordCompile(ctx, "*app.Service")
	metrics.RecordCacheLookup(ctx, CacheHit)
	metrics.ScopeOpened(ctx)
	metrics.ScopeClosed(ctx)
	metrics.RecordDisposalErrors(ctx, 2)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", agg)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInstrumentsRecordMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	inst, err := NewInstruments(nil, mp)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	ctx := context.Background()

	_, op := inst.StartResolve(ctx, "*app.Service", nil, "scope-1")
	op.End(ctx, nil)
	_, op = inst.StartResolve(ctx, "*app.Repo", "primary", "scope-1")
	op.End(ctx, errors.MissingDependency("*app.Repo", nil))

	inst.Metrics().RecordCacheLookup(ctx, CacheMiss)
	inst.Metrics().RecordCacheLookup(ctx, CacheHit)
	inst.Metrics().ScopeOpened(ctx)
	inst.Metrics().ScopeOpened(ctx)
	inst.Metrics().ScopeClosed(ctx)
	inst.Metrics().RecordDisposalErrors(ctx, 0)
	inst.Metrics().RecordDisposalErrors(ctx, 3)

	data := collect(t, reader)
	if got := sumOf(t, data[MetricResolveTotal]); got != 2 {
		t.Errorf("%s = %d, want 2", MetricResolveTotal, got)
	}
	if got := sumOf(t, data[MetricPlanCache]); got != 2 {
		t.Errorf("%s = %d, want 2", MetricPlanCache, got)
	}
	if got := sumOf(t, data[MetricScopeActive]); got != 1 {
		t.Errorf("%s = %d, want 1", MetricScopeActive, got)
	}
	if got := sumOf(t, data[MetricDisposalErrors]); got != 3 {
		t.Errorf("%s = %d, want 3", MetricDisposalErrors, got)
	}
	if _, ok := data[MetricResolveDuration].(metricdata.Histogram[float64]); !ok {
		t.Errorf("expected duration histogram, got %T", data[MetricResolveDuration])
	}
}

func TestInstrumentsResolveSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	inst, err := NewInstruments(tp, nil)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}

	ctx, op := inst.StartResolve(context.Background(), "*app.Service", 7, "scope-1")
	_, compile := inst.StartCompile(ctx, "*app.Service")
	compile.End(ctx, nil)
	op.End(ctx, errors.RecursionTooDeep(100, nil))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != SpanCompile || spans[1].Name() != SpanResolve {
		t.Errorf("unexpected span names %q %q", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("compile span should be a child of the resolve span")
	}

	resolve := spans[1]
	if resolve.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", resolve.Status())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range resolve.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrErrorCode].AsString() != string(errors.ErrCodeRecursionTooDeep) {
		t.Errorf("error.code = %v", attrs[AttrErrorCode])
	}
	if attrs[AttrServiceKey].AsString() != "7" {
		t.Errorf("service key = %v", attrs[AttrServiceKey])
	}
	if attrs[AttrStatus].AsString() != StatusError {
		t.Errorf("status = %v", attrs[AttrStatus])
	}
}

func TestGlobalAndNop(t *testing.T) {
	if Global(false, false) == nil {
		t.Fatal("expected non-nil instruments")
	}
	inst := Nop()
	ctx, op := inst.StartDispose(context.Background(), "scope-1")
	op.End(ctx, fmt.Errorf("close failed"))
	if op.Duration() < 0 {
		t.Error("negative duration")
	}
}

type staticChecker Health

func (c staticChecker) CheckHealth(context.Context) Health { return Health(c) }

func TestNewReport(t *testing.T) {
	r := NewReport("orders", "v1.2.3")
	if r.Status != HealthStatusUp {
		t.Errorf("expected status up, got %s", r.Status)
	}
	if r.Service != "orders" || r.Version != "v1.2.3" {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestReport_Collect(t *testing.T) {
	tests := []struct {
		name       string
		components []HealthStatus
		want       HealthStatus
	}{
		{"all up", []HealthStatus{HealthStatusUp, HealthStatusUp}, HealthStatusUp},
		{"degraded", []HealthStatus{HealthStatusUp, HealthStatusDegraded}, HealthStatusDegraded},
		{"down wins", []HealthStatus{HealthStatusDown, HealthStatusDegraded}, HealthStatusDown},
		{"down then up", []HealthStatus{HealthStatusDown, HealthStatusUp}, HealthStatusDown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var checkers []HealthChecker
			for i, st := range tc.components {
				checkers = append(checkers, staticChecker{Name: fmt.Sprintf("c%d", i), Status: st})
			}
			r := NewReport("svc", "v1").Collect(context.Background(), checkers...)
			if r.Status != tc.want {
				t.Errorf("status = %s, want %s", r.Status, tc.want)
			}
			if len(r.Components) != len(tc.components) {
				t.Errorf("expected %d components, got %d", len(tc.components), len(r.Components))
			}
			if h, ok := r.Component("c1"); !ok || h.Status != tc.components[1] {
				t.Errorf("Component(c1) = %+v, %v", h, ok)
			}
			if _, ok := r.Component("missing"); ok {
				t.Error("unknown component should not be found")
			}
		})
	}
}

func TestTracerAndMeter(t *testing.T) {
	if Tracer("test-tracer") == nil {
		t.Fatal("expected non-nil tracer")
	}
	if Meter("test-meter") == nil {
		t.Fatal("expected non-nil meter")
	}
}

func TestSetSpanAttribute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "test-attrs")
	SetSpanAttribute(ctx, AttrLifestyle, "singleton")
	SetSpanAttribute(ctx, "depth", 3)
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
	SetSpanError(ctx, fmt.Errorf("test error"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	var found bool
	for _, kv := range ended[0].Attributes() {
		if kv.Key == AttrLifestyle && kv.Value.AsString() == "singleton" {
			found = true
		}
	}
	if !found {
		t.Error("expected lifestyle attribute on span")
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("expected one error event, got %d", len(ended[0].Events()))
	}
}

func TestSetSpanAttributeNoSpan(t *testing.T) {
	// Should not panic with background context
	SetSpanAttribute(context.Background(), "key", "value")
	SetSpanError(context.Background(), fmt.Errorf("no span error"))
}

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		insecure   bool
	}{
		{"always sample", 1.0, true},
		{"never sample", 0.0, true},
		{"ratio based secure", 0.5, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			defer otel.SetTracerProvider(prev)
			cfg := DefaultTracerConfig("test")
			cfg.SampleRate = tc.sampleRate
			cfg.Insecure = tc.insecure
			tp, err := InitTracer(context.Background(), &cfg)
			if err != nil {
				t.Fatalf("InitTracer: %v", err)
			}
			_ = tp.Shutdown(context.Background())
		})
	}
}

func TestInitMeter(t *testing.T) {
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)
	cfg := DefaultMeterConfig("test")
	cfg.Interval = 0

	mp, err := InitMeter(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("InitMeter: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = mp.Shutdown(ctx)
}
