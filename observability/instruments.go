package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/kbukum/wirekit/errors"
)

// Status values recorded on resolve spans and metrics.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Instruments bundles the tracer and metrics the engine records through.
type Instruments struct {
	tracer  trace.Tracer
	metrics *Metrics
}

// NewInstruments builds instruments from explicit providers. A nil provider
// disables that signal.
func NewInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m, err := NewMetrics(mp.Meter(TracerName))
	if err != nil {
		return nil, err
	}
	return &Instruments{tracer: tp.Tracer(TracerName), metrics: m}, nil
}

// Global builds instruments from the otel global providers, falling back to
// no-op instruments when tracing or metrics are switched off.
func Global(tracing, metrics bool) *Instruments {
	var tp trace.TracerProvider
	var mp metric.MeterProvider
	if tracing {
		tp = otel.GetTracerProvider()
	}
	if metrics {
		mp = otel.GetMeterProvider()
	}
	inst, err := NewInstruments(tp, mp)
	if err != nil {
		return Nop()
	}
	return inst
}

// Nop returns instruments that record nothing.
func Nop() *Instruments {
	inst, _ := NewInstruments(nil, nil)
	return inst
}

// Metrics returns the metric instruments.
func (i *Instruments) Metrics() *Metrics {
	return i.metrics
}

// Operation is one traced and timed engine operation.
type Operation struct {
	inst        *Instruments
	span        trace.Span
	start       time.Time
	serviceType string
	resolve     bool
}

// StartResolve starts the span for a top-level resolution.
func (i *Instruments) StartResolve(ctx context.Context, serviceType string, key any, scopeID string) (context.Context, *Operation) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrServiceType, serviceType),
		attribute.String(AttrScopeID, scopeID),
	}
	if key != nil {
		attrs = append(attrs, attribute.String(AttrServiceKey, keyString(key)))
	}
	ctx, span := i.tracer.Start(ctx, SpanResolve, trace.WithAttributes(attrs...))
	return ctx, &Operation{inst: i, span: span, start: time.Now(), serviceType: serviceType, resolve: true}
}

// StartCompile starts the span for building and compiling a plan.
func (i *Instruments) StartCompile(ctx context.Context, serviceType string) (context.Context, *Operation) {
	ctx, span := i.tracer.Start(ctx, SpanCompile, trace.WithAttributes(
		attribute.String(AttrServiceType, serviceType),
	))
	return ctx, &Operation{inst: i, span: span, start: time.Now(), serviceType: serviceType}
}

// StartDispose starts the span for a scope teardown.
func (i *Instruments) StartDispose(ctx context.Context, scopeID string) (context.Context, *Operation) {
	ctx, span := i.tracer.Start(ctx, SpanDispose, trace.WithAttributes(
		attribute.String(AttrScopeID, scopeID),
	))
	return ctx, &Operation{inst: i, span: span, start: time.Now()}
}

// End finishes the operation, recording err (if any) on the span and, for
// resolutions, the resolve metrics.
func (op *Operation) End(ctx context.Context, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		if code := errors.CodeOf(err); code != "" {
			op.span.SetAttributes(attribute.String(AttrErrorCode, string(code)))
		}
	}
	op.span.SetAttributes(attribute.String(AttrStatus, status))
	op.span.End()

	if op.resolve {
		op.inst.metrics.RecordResolve(ctx, op.serviceType, status, time.Since(op.start))
	}
}

// Duration returns the elapsed time since the operation started.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.start)
}

func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", key)
}
