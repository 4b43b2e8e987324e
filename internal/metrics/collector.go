package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Collector
// =============================================================================

var (
	sizeBuckets       = prometheus.ExponentialBuckets(100, 10, 8)
	discoveryBuckets  = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	candidateBuckets  = []float64{0, 1, 2, 5, 10, 20}
	delegationBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300}
)

// Collector 持有全部 Prometheus 指标，并实现 discovery 与 delegation 的 Observer
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpRequestSize  *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec

	discoveryQueries  *prometheus.CounterVec
	discoveryDuration *prometheus.HistogramVec
	discoveryResults  *prometheus.HistogramVec

	delegations         *prometheus.CounterVec
	delegationDuration  *prometheus.HistogramVec
	delegationsInFlight prometheus.Gauge
	rateLimited         *prometheus.CounterVec

	dbOpen *prometheus.GaugeVec
	dbIdle *prometheus.GaugeVec
}

type options struct {
	registerer prometheus.Registerer
}

type Option func(*options)

// WithRegisterer 指定注册表，默认 prometheus.DefaultRegisterer
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// NewCollector 在 namespace 下注册全部指标。同一注册表上重复注册同名指标会 panic。
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := promauto.With(o.registerer)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	c := &Collector{
		httpRequests:     counter("http_requests_total", "HTTP requests by method, route and status class", "method", "path", "status"),
		httpDuration:     histogram("http_request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:  histogram("http_request_size_bytes", "HTTP request body size", sizeBuckets, "method", "path"),
		httpResponseSize: histogram("http_response_size_bytes", "HTTP response body size", sizeBuckets, "method", "path"),

		discoveryQueries:  counter("discovery_queries_total", "Discovery queries by scope", "scope"),
		discoveryDuration: histogram("discovery_query_duration_seconds", "Discovery query latency", discoveryBuckets, "scope"),
		discoveryResults:  histogram("discovery_results", "Candidates returned per discovery query", candidateBuckets, "scope"),

		delegations:        counter("delegations_total", "Delegation attempts by task type and outcome", "task_type", "status"),
		delegationDuration: histogram("delegation_duration_seconds", "Delegation round trip", delegationBuckets, "task_type"),
		delegationsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delegations_in_flight",
			Help:      "Delegations waiting for a target",
		}),
		rateLimited: counter("delegation_rate_limited_total", "Delegations refused by a rate limit", "direction"),

		dbOpen: gauge("db_connections_open", "Open database connections", "database"),
		dbIdle: gauge("db_connections_idle", "Idle database connections", "database"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest path 应为归一化后的路由，避免标签基数膨胀
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func (c *Collector) ObserveDiscovery(_ context.Context, scope string, results int, elapsed time.Duration) {
	c.discoveryQueries.WithLabelValues(scope).Inc()
	c.discoveryDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
	c.discoveryResults.WithLabelValues(scope).Observe(float64(results))
}

// ObserveRateLimited direction 为 inbound 或 outbound
func (c *Collector) ObserveRateLimited(_ context.Context, direction string) {
	c.rateLimited.WithLabelValues(direction).Inc()
}

func (c *Collector) ObserveDelegation(_ context.Context, taskType, status string, elapsed time.Duration) {
	c.delegations.WithLabelValues(taskType, status).Inc()
	c.delegationDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveInFlight(_ context.Context, delta int64) {
	c.delegationsInFlight.Add(float64(delta))
}

// RecordDBConnections 实现 database.StatsRecorder
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbOpen.WithLabelValues(database).Set(float64(open))
	c.dbIdle.WithLabelValues(database).Set(float64(idle))
}

// statusClass 200 -> "2xx"；100 以下视为 unknown
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
