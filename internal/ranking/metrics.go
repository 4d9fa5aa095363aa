package ranking

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricBatchesTotal     = "ranking_batches_total"
	MetricPostsScoredTotal = "ranking_posts_scored_total"
	MetricNeutralFallbacks = "ranking_neutral_fallbacks_total"
	MetricBatchDuration    = "ranking_batch_duration_seconds"
)

// Metrics contains Prometheus metrics for scoring activity.
// All operations are thread-safe.
type Metrics struct {
	batches          prometheus.Counter
	postsScored      prometheus.Counter
	neutralFallbacks prometheus.Counter
	batchDuration    prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBatchesTotal,
			Help: "Total number of feed scoring batches",
		}),
		postsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPostsScoredTotal,
			Help: "Total number of posts scored",
		}),
		neutralFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNeutralFallbacks,
			Help: "Total number of posts that degraded to the neutral score",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricBatchDuration,
			Help:    "Histogram of feed scoring batch duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.batches,
		m.postsScored,
		m.neutralFallbacks,
		m.batchDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncNeutralFallback counts one post that fell back to the neutral score.
// Safe on a nil receiver so the engine can run without metrics wired.
func (m *Metrics) IncNeutralFallback() {
	if m == nil {
		return
	}
	m.neutralFallbacks.Inc()
}

// ObserveBatch records a completed scoring batch. Safe on a nil receiver.
func (m *Metrics) ObserveBatch(d time.Duration, postCount int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.postsScored.Add(float64(postCount))
	m.batchDuration.Observe(d.Seconds())
}
