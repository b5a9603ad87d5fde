package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/version"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.Short(),
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric names recorded by the engine.
const (
	MetricResolveTotal    = "wirekit.resolve.total"
	MetricResolveDuration = "wirekit.resolve.duration"
	MetricPlanCompiled    = "wirekit.plan.compiled"
	MetricPlanCache       = "wirekit.plan.cache"
	MetricScopeActive     = "wirekit.scope.active"
	MetricDisposalErrors  = "wirekit.disposal.errors"
)

// Cache lookup results for MetricPlanCache.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
	CacheRace = "race"
)

// Metrics holds the metric instruments for resolution, planning and scopes.
type Metrics struct {
	resolveTotal    metric.Int64Counter
	resolveDuration metric.Float64Histogram
	planCompiled    metric.Int64Counter
	planCache       metric.Int64Counter
	scopeActive     metric.Int64UpDownCounter
	disposalErrors  metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	resolveTotal, err := meter.Int64Counter(MetricResolveTotal,
		metric.WithDescription("Total number of top-level resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricResolveTotal, err)
	}

	resolveDuration, err := meter.Float64Histogram(MetricResolveDuration,
		metric.WithDescription("Duration of top-level resolutions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricResolveDuration, err)
	}

	planCompiled, err := meter.Int64Counter(MetricPlanCompiled,
		metric.WithDescription("Number of composition plans built and compiled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricPlanCompiled, err)
	}

	planCache, err := meter.Int64Counter(MetricPlanCache,
		metric.WithDescription("Compiled-function cache lookups by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricPlanCache, err)
	}

	scopeActive, err := meter.Int64UpDownCounter(MetricScopeActive,
		metric.WithDescription("Number of open scopes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricScopeActive, err)
	}

	disposalErrors, err := meter.Int64Counter(MetricDisposalErrors,
		metric.WithDescription("Cleanup failures observed during scope teardown"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDisposalErrors, err)
	}

	return &Metrics{
		resolveTotal:    resolveTotal,
		resolveDuration: resolveDuration,
		planCompiled:    planCompiled,
		planCache:       planCache,
		scopeActive:     scopeActive,
		disposalErrors:  disposalErrors,
	}, nil
}

// RecordResolve records one completed top-level resolution.
func (m *Metrics) RecordResolve(ctx context.Context, serviceType, status string, duration time.Duration) {
	m.resolveTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrServiceType, serviceType),
		attribute.String(AttrStatus, status),
	))
	m.resolveDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStatus, status),
	))
}

// RecordCompile records a plan built and compiled for serviceType.
func (m *Metrics) RecordCompile(ctx context.Context, serviceType string) {
	m.planCompiled.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrServiceType, serviceType),
	))
}

// RecordCacheLookup records a compiled-function cache lookup result.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.planCache.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCacheResult, result),
	))
}

// ScopeOpened increments the open scope count.
func (m *Metrics) ScopeOpened(ctx context.Context) {
	m.scopeActive.Add(ctx, 1)
}

// ScopeClosed decrements the open scope count.
func (m *Metrics) ScopeClosed(ctx context.Context) {
	m.scopeActive.Add(ctx, -1)
}

// RecordDisposalErrors records n cleanup failures.
func (m *Metrics) RecordDisposalErrors(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.disposalErrors.Add(ctx, int64(n))
}
