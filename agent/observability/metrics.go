package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
)

const instrumentationName = "github.com/agentkitai/agentlens/agent"

// Observer is everything the discovery and delegation services report.
type Observer interface {
	discovery.Observer
	delegation.Observer
}

// Metrics 发现与委托指标收集器
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter
	// 计数器
	discoveryTotal   metric.Int64Counter
	rateLimitedTotal metric.Int64Counter
	delegationTotal  metric.Int64Counter
	// 直方图
	discoveryDuration  metric.Float64Histogram
	discoveryResults   metric.Int64Histogram
	delegationDuration metric.Float64Histogram
	// 在途
	delegationsInFlight metric.Int64UpDownCounter
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// NewMetrics 创建指标收集器
func NewMetrics(opts ...Option) (*Metrics, error) {
	o := &options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	m := &Metrics{
		tracer: o.tracerProvider.Tracer(instrumentationName),
		meter:  meter,
	}

	var err error

	// 发现查询计数
	m.discoveryTotal, err = meter.Int64Counter("agentlens.discovery.total",
		metric.WithDescription("Total number of discovery queries"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	// 限流拒绝
	m.rateLimitedTotal, err = meter.Int64Counter("agentlens.ratelimit.rejected.total",
		metric.WithDescription("Delegations refused by a rate limit"),
		metric.WithUnit("{delegation}"))
	if err != nil {
		return nil, err
	}

	// 委托结果
	m.delegationTotal, err = meter.Int64Counter("agentlens.delegation.total",
		metric.WithDescription("Total number of delegation attempts by outcome"),
		metric.WithUnit("{delegation}"))
	if err != nil {
		return nil, err
	}

	m.discoveryDuration, err = meter.Float64Histogram("agentlens.discovery.duration",
		metric.WithDescription("Discovery query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1))
	if err != nil {
		return nil, err
	}

	m.discoveryResults, err = meter.Int64Histogram("agentlens.discovery.results",
		metric.WithDescription("Candidates returned per discovery query"),
		metric.WithUnit("{candidate}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20))
	if err != nil {
		return nil, err
	}

	m.delegationDuration, err = meter.Float64Histogram("agentlens.delegation.duration",
		metric.WithDescription("Delegation round trip in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300))
	if err != nil {
		return nil, err
	}

	m.delegationsInFlight, err = meter.Int64UpDownCounter("agentlens.delegation.inflight",
		metric.WithDescription("Delegations waiting for a target"),
		metric.WithUnit("{delegation}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveDiscovery 记录一次发现查询
func (m *Metrics) ObserveDiscovery(ctx context.Context, scope string, results int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("scope", scope))
	m.discoveryTotal.Add(ctx, 1, attrs)
	m.discoveryDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.discoveryResults.Record(ctx, int64(results), attrs)
}

// ObserveRateLimited 记录限流拒绝
func (m *Metrics) ObserveRateLimited(ctx context.Context, direction string) {
	m.rateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// ObserveDelegation 记录一次委托的最终结果
func (m *Metrics) ObserveDelegation(ctx context.Context, taskType, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status))
	m.delegationTotal.Add(ctx, 1, attrs)
	m.delegationDuration.Record(ctx, elapsed.Seconds(), attrs)

	trace.SpanFromContext(ctx).AddEvent("delegation.outcome", trace.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
		attribute.Float64("duration_ms", float64(elapsed.Milliseconds()))))
}

// ObserveInFlight 调整在途委托数量
func (m *Metrics) ObserveInFlight(ctx context.Context, delta int64) {
	m.delegationsInFlight.Add(ctx, delta)
}

// Tracer 获取 Tracer
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

// Multi fans each observation out to every observer in order.
type Multi []Observer

func (m Multi) ObserveDiscovery(ctx context.Context, scope string, results int, elapsed time.Duration) {
	for _, o := range m {
		o.ObserveDiscovery(ctx, scope, results, elapsed)
	}
}

func (m Multi) ObserveRateLimited(ctx context.Context, direction string) {
	for _, o := range m {
		o.ObserveRateLimited(ctx, direction)
	}
}

func (m Multi) ObserveDelegation(ctx context.Context, taskType, status string, elapsed time.Duration) {
	for _, o := range m {
		o.ObserveDelegation(ctx, taskType, status, elapsed)
	}
}

func (m Multi) ObserveInFlight(ctx context.Context, delta int64) {
	for _, o := range m {
		o.ObserveInFlight(ctx, delta)
	}
}

var (
	_ Observer = (*Metrics)(nil)
	_ Observer = Multi(nil)
)
