package analytics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricGatewayQueriesTotal  = "analytics_gateway_queries_total"
	MetricGatewayQueryErrors   = "analytics_gateway_query_errors_total"
	MetricGatewayQueryDuration = "analytics_gateway_query_duration_seconds"

	MetricPercentileRefreshCycles   = "percentile_refresh_cycles_total"
	MetricPercentileRefreshErrors   = "percentile_refresh_errors_total"
	MetricPercentileRefreshDuration = "percentile_refresh_duration_seconds"
	MetricPercentileRefreshTenants  = "percentile_refresh_last_tenant_count"
)

// Metrics contains Prometheus metrics for gateway query activity.
// All operations are thread-safe.
type Metrics struct {
	queriesTotal  *prometheus.CounterVec
	queryErrors   *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGatewayQueriesTotal,
			Help: "Total number of analytics gateway queries by operation",
		}, []string{"operation"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGatewayQueryErrors,
			Help: "Total number of failed analytics gateway queries by operation",
		}, []string{"operation"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricGatewayQueryDuration,
			Help:    "Histogram of analytics gateway query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.queriesTotal,
		m.queryErrors,
		m.queryDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one gateway query outcome. Safe on a nil receiver so
// gateways can run without metrics wired.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(operation).Inc()
	m.queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.queryErrors.WithLabelValues(operation).Inc()
	}
}

// RefresherMetrics contains Prometheus metrics for the percentile refresh
// job. All operations are thread-safe.
type RefresherMetrics struct {
	cycles          prometheus.Counter
	errors          prometheus.Counter
	cycleDuration   prometheus.Histogram
	lastTenantCount prometheus.Gauge
}

// NewRefresherMetrics creates a new RefresherMetrics instance.
// The metrics are not registered; call Register to register them with a registry.
func NewRefresherMetrics() *RefresherMetrics {
	return &RefresherMetrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPercentileRefreshCycles,
			Help: "Total number of percentile refresh cycles",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPercentileRefreshErrors,
			Help: "Total number of per-tenant percentile refresh failures",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPercentileRefreshDuration,
			Help:    "Histogram of percentile refresh cycle duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0, 10.0},
		}),
		lastTenantCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPercentileRefreshTenants,
			Help: "Number of tenants refreshed in the last cycle",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *RefresherMetrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.cycles,
		m.errors,
		m.cycleDuration,
		m.lastTenantCount,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncError counts one failed per-tenant refresh. Safe on a nil receiver.
func (m *RefresherMetrics) IncError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

// ObserveCycle records a completed refresh cycle. Safe on a nil receiver.
func (m *RefresherMetrics) ObserveCycle(d time.Duration, tenantCount int) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.lastTenantCount.Set(float64(tenantCount))
}
