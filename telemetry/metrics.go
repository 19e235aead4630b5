package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names accepted by Record. Components emit these through
// core.Telemetry.RecordMetric so they never import Prometheus directly.
const (
	MetricPlanDuration  = "plan_duration_seconds"
	MetricRepairRounds  = "repair_rounds"
	MetricProviderError = "provider_errors"
	MetricCacheHit      = "cache_hits"
	MetricCacheMiss     = "cache_misses"
	MetricPlansTotal    = "plans_total"
	MetricRateLimited   = "rate_limited"
	MetricSessionActive = "sessions_active"
)

// Metrics owns the Prometheus registry and the planner's collectors.
type Metrics struct {
	registry *prometheus.Registry

	plansTotal     *prometheus.CounterVec
	planDuration   prometheus.Histogram
	repairRounds   prometheus.Histogram
	providerErrors *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	rateLimited    prometheus.Counter
	sessionsActive prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics builds a registry with the planner collectors plus the standard
// process and Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		plansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_plans_total",
			Help: "Plan requests by terminal status.",
		}, []string{"status"}),
		planDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_plan_duration_seconds",
			Help:    "End-to-end plan request latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		repairRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_repair_rounds",
			Help:    "Repair rounds used per plan.",
			Buckets: []float64{0, 1, 2, 3},
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_provider_errors_total",
			Help: "Failed provider calls by provider name.",
		}, []string{"provider"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_pool_cache_hits_total",
			Help: "Candidate pool cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_pool_cache_misses_total",
			Help: "Candidate pool cache misses.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_sessions_active",
			Help: "Sessions currently known to the store.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "HTTP requests by path and status code.",
		}, []string{"path", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		m.plansTotal, m.planDuration, m.repairRounds, m.providerErrors,
		m.cacheHits, m.cacheMisses, m.rateLimited, m.sessionsActive,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Record is the generic gateway behind core.Telemetry.RecordMetric.
// Unknown names are dropped rather than registered on the fly, which keeps
// the metric surface fixed and the cardinality bounded.
func (m *Metrics) Record(name string, value float64, labels map[string]string) {
	switch name {
	case MetricPlansTotal:
		m.plansTotal.WithLabelValues(labels["status"]).Add(value)
	case MetricPlanDuration:
		m.planDuration.Observe(value)
	case MetricRepairRounds:
		m.repairRounds.Observe(value)
	case MetricProviderError:
		m.providerErrors.WithLabelValues(labels["provider"]).Add(value)
	case MetricCacheHit:
		m.cacheHits.Add(value)
	case MetricCacheMiss:
		m.cacheMisses.Add(value)
	case MetricRateLimited:
		m.rateLimited.Add(value)
	case MetricSessionActive:
		m.sessionsActive.Set(value)
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(path string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObservePlan records a finished plan request.
func (m *Metrics) ObservePlan(status string, elapsed time.Duration) {
	m.plansTotal.WithLabelValues(status).Inc()
	m.planDuration.Observe(elapsed.Seconds())
}

// ObserveRepairRounds records how many repair rounds a plan consumed.
func (m *Metrics) ObserveRepairRounds(rounds int) {
	m.repairRounds.Observe(float64(rounds))
}
