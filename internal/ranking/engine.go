package ranking

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/gymhive/feedrank/internal/analytics"
	"github.com/gymhive/feedrank/internal/post"
	"github.com/gymhive/feedrank/internal/tracing"
)

// Caller-contract errors. Empty identifiers and empty batches are caller
// bugs, not data conditions, and fail fast.
var (
	ErrEmptyUserID   = errors.New("user ID is required")
	ErrEmptyTenantID = errors.New("tenant ID is required")
	ErrNoCandidates  = errors.New("candidate post list is empty")
)

// Defaults for engine tuning knobs.
const (
	DefaultConcurrency    = 8
	DefaultGatewayTimeout = 2 * time.Second
)

// EngineConfig holds tuning knobs for the scoring engine. Zero values fall
// back to defaults.
type EngineConfig struct {
	// Weights to combine signals with. Nil uses DefaultWeights.
	Weights *Weights

	// Logger for degraded-post warnings. Nil uses slog.Default.
	Logger *slog.Logger

	// Metrics for batch instrumentation. Optional.
	Metrics *Metrics

	// GatewayTimeout bounds each analytics round-trip. The request
	// context's own deadline still applies if it is sooner.
	GatewayTimeout time.Duration

	// Concurrency limits how many posts a batch scores in parallel.
	Concurrency int
}

// Engine scores candidate posts for a user. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	gateway     analytics.Gateway
	weights     Weights
	logger      *slog.Logger
	metrics     *Metrics
	timeout     time.Duration
	concurrency int
	now         func() time.Time
}

// NewEngine creates a scoring engine over the given analytics gateway.
func NewEngine(gateway analytics.Gateway, cfg EngineConfig) *Engine {
	weights := *DefaultWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Engine{
		gateway:     gateway,
		weights:     weights,
		logger:      logger,
		metrics:     cfg.Metrics,
		timeout:     timeout,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Weights returns the weights the engine combines signals with.
func (e *Engine) Weights() Weights {
	return e.weights
}

// SetClock overrides the engine's time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// ScorePost computes the five relevance signals for a single post and
// combines them into a FeedScore. An infrastructure failure in any signal
// degrades the whole post to the neutral score and logs the cause; only
// context cancellation surfaces as an error.
func (e *Engine) ScorePost(ctx context.Context, userID, tenantID string, p post.PostRef) (FeedScore, error) {
	if userID == "" {
		return FeedScore{}, ErrEmptyUserID
	}
	if tenantID == "" {
		return FeedScore{}, ErrEmptyTenantID
	}
	if err := p.Validate(); err != nil {
		return FeedScore{}, err
	}

	content, err := e.contentAffinity(ctx, userID, tenantID, p)
	if err != nil {
		return e.degrade(ctx, p.ID, "content_affinity", err)
	}
	social, err := e.socialAffinity(ctx, userID, tenantID, p)
	if err != nil {
		return e.degrade(ctx, p.ID, "social_affinity", err)
	}
	pastEng, err := e.pastEngagement(ctx, userID, tenantID, p)
	if err != nil {
		return e.degrade(ctx, p.ID, "past_engagement", err)
	}
	timing, err := e.timing(ctx, userID, tenantID, p)
	if err != nil {
		return e.degrade(ctx, p.ID, "timing", err)
	}
	popularity, err := e.popularity(ctx, tenantID, p)
	if err != nil {
		return e.degrade(ctx, p.ID, "popularity", err)
	}

	return Combine(p.ID, content, social, pastEng, timing, popularity, &e.weights), nil
}

// degrade maps a signal failure to the neutral score, unless the request
// context itself is done, in which case the context error wins.
func (e *Engine) degrade(ctx context.Context, postID, signal string, err error) (FeedScore, error) {
	if ctx.Err() != nil {
		return FeedScore{}, ctx.Err()
	}
	e.logger.Warn("signal failed, using neutral score",
		"post_id", postID,
		"signal", signal,
		"error", err)
	e.metrics.IncNeutralFallback()
	return NeutralScore(postID), nil
}

// ScorePosts scores a batch of candidate posts in parallel and returns them
// ordered by descending final score, ties keeping candidate order. A post
// whose signals fail degrades to the neutral score; a post cancelled
// mid-batch is omitted. The batch itself only fails on caller errors or
// when cancellation wiped out every result.
func (e *Engine) ScorePosts(ctx context.Context, userID, tenantID string, posts []post.PostRef) (_ []FeedScore, err error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	if len(posts) == 0 {
		return nil, ErrNoCandidates
	}

	ctx, endSpan := tracing.StartSpan(ctx, "score_posts")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("feed.user_id", userID),
		attribute.String("feed.tenant_id", tenantID),
		attribute.Int("feed.candidate_count", len(posts)),
	)

	start := e.now()
	scored := make([]*FeedScore, len(posts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range posts {
		g.Go(func() error {
			s, serr := e.ScorePost(gctx, userID, tenantID, p)
			if serr != nil {
				// Cancelled or invalid posts drop out of the batch
				// without taking the other posts with them.
				e.logger.Warn("post dropped from batch",
					"post_id", p.ID,
					"error", serr)
				return nil
			}
			scored[i] = &s
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	results := make([]FeedScore, 0, len(posts))
	for _, s := range scored {
		if s != nil {
			results = append(results, *s)
		}
	}
	if len(results) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	e.metrics.ObserveBatch(e.now().Sub(start), len(results))
	return results, nil
}

// callCtx bounds one gateway round-trip. The batch deadline still applies
// if it is sooner than the per-call timeout.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) contentAffinity(ctx context.Context, userID, tenantID string, p post.PostRef) (float64, error) {
	cctx, cancel := e.callCtx(ctx)
	primary, err := e.gateway.PrimaryCategory(cctx, userID, tenantID)
	cancel()
	if err != nil {
		return 0, err
	}
	if primary == "" {
		return contentNoHistory, nil
	}

	cctx, cancel = e.callCtx(ctx)
	categories, err := e.gateway.PostCategories(cctx, p)
	cancel()
	if err != nil {
		return 0, err
	}
	return ContentAffinityScore(primary, categories), nil
}

func (e *Engine) socialAffinity(ctx context.Context, userID, tenantID string, p post.PostRef) (float64, error) {
	// A user's own post gets no social boost.
	if p.AuthorID == userID {
		return 0.0, nil
	}

	cctx, cancel := e.callCtx(ctx)
	rel, err := e.gateway.RelationshipType(cctx, userID, p.AuthorID, tenantID)
	cancel()
	if err != nil {
		return 0, err
	}

	interactions := 0
	switch rel {
	case analytics.RelationTrainer, analytics.RelationTrainee, analytics.RelationFollowing:
		// Explicit relationship, no interaction lookup needed.
	default:
		cctx, cancel = e.callCtx(ctx)
		interactions, err = e.gateway.PastInteractionCount(cctx, userID, p.AuthorID, analytics.DefaultInteractionWindowDays)
		cancel()
		if err != nil {
			return 0, err
		}
	}
	return SocialAffinityScore(rel, interactions), nil
}

func (e *Engine) pastEngagement(ctx context.Context, userID, tenantID string, p post.PostRef) (float64, error) {
	cctx, cancel := e.callCtx(ctx)
	pattern, err := e.gateway.EngagementPatterns(cctx, userID, tenantID, analytics.DefaultInteractionWindowDays)
	cancel()
	if err != nil {
		return 0, err
	}
	return PastEngagementScore(pattern, p.PostType), nil
}

func (e *Engine) timing(ctx context.Context, userID, tenantID string, p post.PostRef) (float64, error) {
	cctx, cancel := e.callCtx(ctx)
	activeHours, err := e.gateway.ActiveHours(cctx, userID, tenantID, analytics.DefaultInteractionWindowDays)
	cancel()
	if err != nil {
		return 0, err
	}

	created := p.CreatedAtUTC()
	hoursSince := e.now().UTC().Sub(created).Hours()
	return TimingScore(hoursSince, created.Hour(), activeHours), nil
}

func (e *Engine) popularity(ctx context.Context, tenantID string, p post.PostRef) (float64, error) {
	cctx, cancel := e.callCtx(ctx)
	metrics, err := e.gateway.PostEngagementMetrics(cctx, p)
	cancel()
	if err != nil {
		return 0, err
	}

	cctx, cancel = e.callCtx(ctx)
	pct, err := e.gateway.TenantPercentiles(cctx, tenantID, analytics.DefaultPercentileLookbackHours)
	cancel()
	if err != nil {
		return 0, err
	}
	return PopularityScore(metrics, pct), nil
}
