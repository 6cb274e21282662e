package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// RPC metrics
	RPCCalls    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	// Sandbox metrics
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	InvocationsActive  prometheus.Gauge
	BridgeFetches      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec

	factory   promauto.Factory
	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the health endpoint
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	RPCCalls          int64   `json:"rpcCalls"`
	RPCFailures       int64   `json:"rpcFailures"`
	Invocations       int64   `json:"invocations"`
	ActiveInvocations int64   `json:"activeInvocations"`
	TotalDuration     float64 `json:"-"` // sum of all request durations
	RequestCount      int64   `json:"-"` // count for averaging
	AvgDurationMS     float64 `json:"avgDurationMs"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a collector registered on its own registry, so
// several instances can coexist in one process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		factory:   factory,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpad_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpad_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpad_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpad_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// RPC metrics
		RPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpad_rpc_calls_total",
				Help: "Total number of RPC calls",
			},
			[]string{"kind", "method", "outcome"},
		),
		RPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpad_rpc_duration_seconds",
				Help:    "RPC call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind", "method"},
		),

		// Sandbox metrics
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpad_sandbox_invocations_total",
				Help: "Total number of sandboxed function invocations",
			},
			[]string{"outcome"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpad_sandbox_duration_seconds",
				Help:    "Sandboxed function invocation duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		InvocationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolpad_sandbox_active",
				Help: "Number of sandboxed invocations in progress",
			},
		),
		BridgeFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpad_bridge_fetch_total",
				Help: "Total number of fetch calls made from sandboxed code",
			},
			[]string{"outcome"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpad_fetch_breaker_transitions_total",
				Help: "Per-host fetch circuit breaker transitions, by target state",
			},
			[]string{"to"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "toolpad_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRPCCall records one dispatched RPC call
func (m *Metrics) RecordRPCCall(kind, method, outcome string, duration time.Duration) {
	m.RPCCalls.WithLabelValues(kind, method, outcome).Inc()
	m.RPCDuration.WithLabelValues(kind, method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.RPCCalls++
	if outcome != "ok" {
		m.snapshot.RPCFailures++
	}
	m.mu.Unlock()
}

// RecordInvocation records one finished sandbox invocation
func (m *Metrics) RecordInvocation(outcome string, duration time.Duration) {
	m.Invocations.WithLabelValues(outcome).Inc()
	m.InvocationDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Invocations++
	m.mu.Unlock()
}

// InvocationStarted increments the active invocation gauge
func (m *Metrics) InvocationStarted() {
	m.InvocationsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveInvocations++
	m.mu.Unlock()
}

// InvocationFinished decrements the active invocation gauge
func (m *Metrics) InvocationFinished() {
	m.InvocationsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveInvocations--
	m.mu.Unlock()
}

// RecordFetch records one fetch made through the sandbox bridge
func (m *Metrics) RecordFetch(outcome string) {
	m.BridgeFetches.WithLabelValues(outcome).Inc()
}

// RecordBreakerTransition counts a fetch circuit breaker changing state
func (m *Metrics) RecordBreakerTransition(to string) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
}

// ObserveStore exports the app store's record counts as gauges. Call it
// once per Metrics.
func (m *Metrics) ObserveStore(counts func() (apps, releases, deployments int)) {
	gauges := []struct {
		name, help string
		pick       func(a, r, d int) int
	}{
		{"toolpad_store_apps", "Apps in the store", func(a, _, _ int) int { return a }},
		{"toolpad_store_releases", "Releases across all apps", func(_, r, _ int) int { return r }},
		{"toolpad_store_deployments", "Deployments across all apps", func(_, _, d int) int { return d }},
	}
	for _, g := range gauges {
		pick := g.pick
		m.factory.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(pick(counts())) },
		)
	}
}
