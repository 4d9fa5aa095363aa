package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is the default interval between refresh cycles.
const DefaultRefreshInterval = 1 * time.Minute

// DefaultRefreshTimeout is the default timeout for a single refresh cycle.
const DefaultRefreshTimeout = 30 * time.Second

// RefresherConfig configures the percentile refresh job.
type RefresherConfig struct {
	// Interval is the duration between refresh cycles.
	Interval time.Duration
	// Timeout bounds each refresh cycle.
	Timeout time.Duration
	// LookbackHours is the percentile window to keep warm; defaults to the
	// gateway's standard 24h lookback.
	LookbackHours int
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for cycle tracking.
	Metrics *RefresherMetrics
}

// PercentileRefresher periodically recomputes tenant percentile snapshots
// from the source gateway and writes them into the cache, so read paths hit
// a warm snapshot instead of paying for the tenant-wide aggregate.
type PercentileRefresher struct {
	config  RefresherConfig
	source  Gateway
	cache   *CachedGateway
	tenants []string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPercentileRefresher creates a refresher for the given tenant list.
func NewPercentileRefresher(config RefresherConfig, source Gateway, cache *CachedGateway, tenants []string) *PercentileRefresher {
	if config.Interval == 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.LookbackHours <= 0 {
		config.LookbackHours = DefaultPercentileLookbackHours
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &PercentileRefresher{
		config:  config,
		source:  source,
		cache:   cache,
		tenants: append([]string(nil), tenants...),
	}
}

// Start begins the periodic refresh job.
// Returns immediately; the job runs in a background goroutine.
func (r *PercentileRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
	return nil
}

// Stop signals the refresh job to stop and waits for it to finish.
func (r *PercentileRefresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (r *PercentileRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *PercentileRefresher) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Warm the cache immediately rather than waiting one full interval.
	r.RefreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce recomputes and stores the percentile snapshot for every
// configured tenant. A failing tenant is logged and skipped; the cycle
// continues so one tenant's outage does not starve the rest.
func (r *PercentileRefresher) RefreshOnce(ctx context.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	refreshed := 0
	for _, tenantID := range r.tenants {
		pct, err := r.source.TenantPercentiles(ctx, tenantID, r.config.LookbackHours)
		if err != nil {
			r.config.Logger.Error("percentile refresh failed",
				"tenant_id", tenantID,
				"error", err)
			r.config.Metrics.IncError()
			continue
		}
		if err := r.cache.StorePercentiles(ctx, tenantID, r.config.LookbackHours, pct); err != nil {
			r.config.Logger.Error("percentile store failed",
				"tenant_id", tenantID,
				"error", err)
			r.config.Metrics.IncError()
			continue
		}
		refreshed++
	}

	r.config.Metrics.ObserveCycle(time.Since(start), refreshed)
	r.config.Logger.Debug("percentile refresh cycle complete",
		"tenants_refreshed", refreshed,
		"duration_ms", time.Since(start).Milliseconds())
}
