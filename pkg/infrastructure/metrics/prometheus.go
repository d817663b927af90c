package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector using Prometheus.
type PrometheusCollector struct {
	runs           *prometheus.CounterVec
	runIterations  prometheus.Histogram
	runDuration    *prometheus.HistogramVec
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	validations    *prometheus.CounterVec
	queries        *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	leaseWait      prometheus.Histogram
	poolExhausted  prometheus.Counter
	activeLeases   prometheus.Gauge
}

// NewPrometheusCollector creates a collector registered against the
// given registerer. Pass prometheus.DefaultRegisterer in production.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) Collector {
	c := &PrometheusCollector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed question runs by final status.",
		}, []string{"status"}),
		runIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "Replanning iterations consumed per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of question runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "success"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sql_validations_total",
			Help:      "Validator verdicts by outcome.",
		}, []string{"allowed"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "SQL statements executed by outcome.",
		}, []string{"success"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of SQL statement execution.",
			Buckets:   prometheus.DefBuckets,
		}),
		leaseWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lease_wait_seconds",
			Help:      "Time spent waiting for a connection lease.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5},
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Lease acquisitions that timed out.",
		}),
		activeLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_leases",
			Help:      "Connection leases currently held.",
		}),
	}

	reg.MustRegister(
		c.runs, c.runIterations, c.runDuration,
		c.toolCalls, c.toolDuration,
		c.validations, c.queries, c.queryDuration,
		c.leaseWait, c.poolExhausted, c.activeLeases,
	)
	return c
}

// RecordRun records a completed question run.
func (c *PrometheusCollector) RecordRun(status string, iterations int, duration time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runIterations.Observe(float64(iterations))
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordToolInvocation records one tool call.
func (c *PrometheusCollector) RecordToolInvocation(tool string, duration time.Duration, success bool) {
	c.toolCalls.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordValidation records a validator verdict.
func (c *PrometheusCollector) RecordValidation(allowed bool) {
	c.validations.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// RecordQueryExecution records one SQL statement execution.
func (c *PrometheusCollector) RecordQueryExecution(duration time.Duration, success bool) {
	c.queries.WithLabelValues(strconv.FormatBool(success)).Inc()
	c.queryDuration.Observe(duration.Seconds())
}

// RecordLeaseAcquisition records how long a caller waited for a lease.
func (c *PrometheusCollector) RecordLeaseAcquisition(wait time.Duration) {
	c.leaseWait.Observe(wait.Seconds())
}

// IncrementPoolExhaustion counts acquire-timeout failures.
func (c *PrometheusCollector) IncrementPoolExhaustion() {
	c.poolExhausted.Inc()
}

// UpdateActiveLeases records the number of leases currently held.
func (c *PrometheusCollector) UpdateActiveLeases(count int) {
	c.activeLeases.Set(float64(count))
}

// StartTimer starts a timer for measuring duration.
func (c *PrometheusCollector) StartTimer(name string) Timer {
	return &prometheusTimer{start: time.Now()}
}

type prometheusTimer struct {
	start time.Time
}

// Stop returns the elapsed time in seconds.
func (t *prometheusTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}

// MetricsServer provides an HTTP server for Prometheus metrics.
type MetricsServer struct {
	address string
	server  *http.Server
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(address string) *MetricsServer {
	return &MetricsServer{address: address}
}

// Start starts the metrics server.
func (s *MetricsServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    s.address,
		Handler: mux,
	}
	return s.server.ListenAndServe()
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
