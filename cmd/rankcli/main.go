// Package main is the entry point for the rankcli debugging tool. It scores
// a window of recent candidate posts for one user and prints the ranked
// result with a per-signal breakdown.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/gymhive/feedrank/internal/analytics"
	"github.com/gymhive/feedrank/internal/config"
	"github.com/gymhive/feedrank/internal/health"
	"github.com/gymhive/feedrank/internal/post"
	"github.com/gymhive/feedrank/internal/ranking"
	"github.com/gymhive/feedrank/internal/tracing"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	var (
		userID      = flag.String("user", "", "user to rank the feed for (required)")
		tenantID    = flag.String("tenant", "", "tenant the feed belongs to (required)")
		hours       = flag.Int("hours", 24, "candidate window in hours")
		limit       = flag.Int("limit", 50, "maximum number of candidate posts")
		calibration = flag.String("calibration", "", "weights calibration JSON (overrides RANK_CALIBRATION_PATH)")
		configFile  = flag.String("config", "", "optional YAML config file")
		help        = flag.Bool("help", false, "display help message")
	)
	flag.Parse()

	if *help {
		fmt.Println("Feed Ranking CLI")
		fmt.Println()
		fmt.Println("Usage: rankcli -user <id> -tenant <id> [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *userID == "" || *tenantID == "" {
		fmt.Fprintln(os.Stderr, "both -user and -tenant are required (see -help)")
		os.Exit(2)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)
	logger = logger.With("request_id", uuid.NewString())

	if err := run(cfg, logger, *userID, *tenantID, *hours, *limit, *calibration); err != nil {
		logger.Error("ranking failed", "error", err)
		os.Exit(1)
	}
}

// newLogger creates a text logger in development and a JSON logger in
// production.
func newLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

func run(cfg *config.Config, logger *slog.Logger, userID, tenantID string, hours, limit int, calibrationFlag string) error {
	ctx := context.Background()

	// Tracing is opt-in via the standard OTLP endpoint variable.
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "feedrank-rankcli",
		Enabled:      otlpEndpoint != "",
		Environment:  cfg.Env,
		OTLPEndpoint: otlpEndpoint,
		SamplingRate: 1.0,
		InsecureMode: !cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := health.NewDBChecker(db).HealthCheck(pingCtx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	registry := prometheus.NewRegistry()
	gatewayMetrics := analytics.NewMetrics()
	if err := gatewayMetrics.Register(registry); err != nil {
		return fmt.Errorf("registering gateway metrics: %w", err)
	}

	pgGateway := analytics.NewPostgresGateway(db)
	pgGateway.SetMetrics(gatewayMetrics)

	var gateway analytics.Gateway = pgGateway
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := health.NewRedisChecker(rdb).HealthCheck(pingCtx); err != nil {
			logger.Warn("redis unreachable, running without percentile cache", "error", err)
		} else {
			gateway = analytics.NewCachedGateway(pgGateway, rdb, cfg.PercentileCacheTTL(), logger)
		}
	}

	calibrationPath := cfg.CalibrationPath
	if calibrationFlag != "" {
		calibrationPath = calibrationFlag
	}
	weights, err := ranking.LoadCalibration(calibrationPath)
	if err != nil {
		logger.Warn("calibration load failed, using default weights", "error", err)
	}

	rankMetrics := ranking.NewMetrics()
	if err := rankMetrics.Register(registry); err != nil {
		return fmt.Errorf("registering ranking metrics: %w", err)
	}

	engine := ranking.NewEngine(gateway, ranking.EngineConfig{
		Weights:        weights,
		Logger:         logger,
		Metrics:        rankMetrics,
		GatewayTimeout: cfg.GatewayTimeout(),
		Concurrency:    cfg.Concurrency,
	})

	candidates, err := selectCandidates(ctx, db, tenantID, hours, limit)
	if err != nil {
		return fmt.Errorf("selecting candidates: %w", err)
	}
	if len(candidates) == 0 {
		logger.Info("no candidate posts in window", "tenant_id", tenantID, "hours", hours)
		return nil
	}
	logger.Info("scoring candidates",
		"user_id", userID,
		"tenant_id", tenantID,
		"candidates", len(candidates))

	scores, err := engine.ScorePosts(ctx, userID, tenantID, candidates)
	if err != nil {
		return err
	}

	printScores(os.Stdout, scores)
	return nil
}

// selectCandidates pulls the most recent non-deleted posts for the tenant.
// This is a debugging stand-in for the feed-assembly caller that normally
// supplies candidates.
func selectCandidates(ctx context.Context, db *sql.DB, tenantID string, hours, limit int) ([]post.PostRef, error) {
	const query = `
		SELECT id, author_id, created_at, post_type
		FROM posts
		WHERE tenant_id = $1
		  AND deleted_at IS NULL
		  AND created_at > NOW() - ($2 * INTERVAL '1 hour')
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, tenantID, hours, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []post.PostRef
	for rows.Next() {
		var p post.PostRef
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.CreatedAt, &p.PostType); err != nil {
			return nil, err
		}
		candidates = append(candidates, p)
	}
	return candidates, rows.Err()
}

func printScores(w *os.File, scores []ranking.FeedScore) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPOST\tFINAL\tCONTENT\tSOCIAL\tPAST_ENG\tTIMING\tPOPULARITY")
	for i, s := range scores {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			i+1, s.PostID, s.FinalScore,
			s.ContentAffinity, s.SocialAffinity, s.PastEngagement, s.Timing, s.Popularity)
	}
	tw.Flush()
}
