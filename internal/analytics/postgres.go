package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gymhive/feedrank/internal/post"
	"github.com/gymhive/feedrank/internal/tracing"
)

// PostgresGateway is the Gateway implementation backed by the read-surface
// schema in migrations/. Aggregates (grouping, percentiles, histograms) are
// pushed into SQL; Go code only maps rows to the neutral-value contract.
//
// The underlying *sql.DB pool is shared read-only across concurrent per-post
// scoring tasks; no write statement exists in this type.
type PostgresGateway struct {
	db      *sql.DB
	metrics *Metrics
	now     func() time.Time
}

// NewPostgresGateway creates a gateway over an open database handle.
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{
		db:  db,
		now: time.Now,
	}
}

// SetMetrics attaches query metrics. Optional; a nil Metrics is a no-op.
func (g *PostgresGateway) SetMetrics(m *Metrics) {
	g.metrics = m
}

// SetClock replaces the gateway's time source. Used by tests to pin "now".
func (g *PostgresGateway) SetClock(now func() time.Time) {
	g.now = now
}

// PrimaryCategory returns the user's most-attended category over the last
// 90 days, "" when there is no attendance history.
func (g *PostgresGateway) PrimaryCategory(ctx context.Context, userID, tenantID string) (category string, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "class_attendance", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("primary_category", start, err)
	}()

	cutoff := g.now().UTC().AddDate(0, 0, -PrimaryCategoryWindowDays)

	row := g.db.QueryRowContext(ctx, `
		SELECT category
		FROM class_attendance
		WHERE user_id = $1 AND tenant_id = $2 AND attended_at >= $3
		GROUP BY category
		ORDER BY COUNT(*) DESC, category ASC
		LIMIT 1`,
		userID, tenantID, cutoff)

	if scanErr := row.Scan(&category); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", nil
		}
		err = fmt.Errorf("query primary category: %w", scanErr)
		return "", err
	}
	return category, nil
}

// PostCategories returns the tags attached to a post.
func (g *PostgresGateway) PostCategories(ctx context.Context, p post.PostRef) (tags []string, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "post_tags", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("post_categories", start, err)
	}()

	rows, err := g.db.QueryContext(ctx, `
		SELECT tag FROM post_tags WHERE post_id = $1 ORDER BY tag`,
		p.ID)
	if err != nil {
		err = fmt.Errorf("query post tags: %w", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		if scanErr := rows.Scan(&tag); scanErr != nil {
			err = fmt.Errorf("scan post tag: %w", scanErr)
			return nil, err
		}
		tags = append(tags, tag)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("iterate post tags: %w", rowsErr)
		return nil, err
	}
	return tags, nil
}

// RelationshipType evaluates the relationship cascade, first match wins.
func (g *PostgresGateway) RelationshipType(ctx context.Context, userID, otherUserID, tenantID string) (rel Relationship, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "relationships", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("relationship_type", start, err)
	}()

	rows, err := g.db.QueryContext(ctx, `
		SELECT relation
		FROM relationships
		WHERE tenant_id = $1 AND user_id = $2 AND other_user_id = $3`,
		tenantID, userID, otherUserID)
	if err != nil {
		err = fmt.Errorf("query relationships: %w", err)
		return RelationNone, err
	}
	defer rows.Close()

	found := make(map[Relationship]bool)
	for rows.Next() {
		var r string
		if scanErr := rows.Scan(&r); scanErr != nil {
			err = fmt.Errorf("scan relationship: %w", scanErr)
			return RelationNone, err
		}
		found[Relationship(r)] = true
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("iterate relationships: %w", rowsErr)
		return RelationNone, err
	}

	for _, want := range []Relationship{RelationTrainer, RelationTrainee, RelationFollowing} {
		if found[want] {
			return want, nil
		}
	}

	// No explicit relationship: distinguish shared tenant membership from
	// an author outside the tenant entirely.
	var memberCount int
	row := g.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM tenant_members
		WHERE tenant_id = $1 AND user_id = ANY($2)`,
		tenantID, pq.Array([]string{userID, otherUserID}))
	if scanErr := row.Scan(&memberCount); scanErr != nil {
		err = fmt.Errorf("query tenant membership: %w", scanErr)
		return RelationNone, err
	}
	if memberCount == 2 {
		return RelationSameTenant, nil
	}
	return RelationNone, nil
}

// PastInteractionCount counts likes plus non-deleted comments userID made on
// otherUserID's posts within the window.
func (g *PostgresGateway) PastInteractionCount(ctx context.Context, userID, otherUserID string, windowDays int) (count int, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "likes", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("past_interaction_count", start, err)
	}()

	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}
	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)

	row := g.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*)
			 FROM likes l JOIN posts p ON p.id = l.post_id
			 WHERE l.user_id = $1 AND p.author_id = $2 AND l.created_at >= $3)
			+
			(SELECT COUNT(*)
			 FROM comments c JOIN posts p ON p.id = c.post_id
			 WHERE c.user_id = $1 AND p.author_id = $2
			   AND c.deleted_at IS NULL AND c.created_at >= $3)`,
		userID, otherUserID, cutoff)

	if scanErr := row.Scan(&count); scanErr != nil {
		err = fmt.Errorf("query past interactions: %w", scanErr)
		return 0, err
	}
	return count, nil
}

// EngagementPatterns summarizes the user's likes and comments on the
// tenant's posts within the window.
func (g *PostgresGateway) EngagementPatterns(ctx context.Context, userID, tenantID string, windowDays int) (pattern EngagementPattern, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "likes", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("engagement_patterns", start, err)
	}()

	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}
	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)

	var totalLikes int
	row := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM likes l JOIN posts p ON p.id = l.post_id
		WHERE l.user_id = $1 AND p.tenant_id = $2 AND l.created_at >= $3`,
		userID, tenantID, cutoff)
	if scanErr := row.Scan(&totalLikes); scanErr != nil {
		err = fmt.Errorf("query like totals: %w", scanErr)
		return EngagementPattern{}, err
	}

	// No likes in the window means no pattern to personalize against.
	if totalLikes == 0 {
		return EngagementPattern{}, nil
	}

	var totalComments int
	row = g.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM comments c JOIN posts p ON p.id = c.post_id
		WHERE c.user_id = $1 AND p.tenant_id = $2
		  AND c.deleted_at IS NULL AND c.created_at >= $3`,
		userID, tenantID, cutoff)
	if scanErr := row.Scan(&totalComments); scanErr != nil {
		err = fmt.Errorf("query comment totals: %w", scanErr)
		return EngagementPattern{}, err
	}

	rows, queryErr := g.db.QueryContext(ctx, `
		SELECT p.post_type
		FROM likes l JOIN posts p ON p.id = l.post_id
		WHERE l.user_id = $1 AND p.tenant_id = $2 AND l.created_at >= $3
		  AND p.post_type <> ''
		GROUP BY p.post_type
		ORDER BY COUNT(*) DESC, p.post_type ASC
		LIMIT $4`,
		userID, tenantID, cutoff, MaxPreferredPostTypes)
	if queryErr != nil {
		err = fmt.Errorf("query preferred post types: %w", queryErr)
		return EngagementPattern{}, err
	}
	defer rows.Close()

	var preferred []string
	for rows.Next() {
		var t string
		if scanErr := rows.Scan(&t); scanErr != nil {
			err = fmt.Errorf("scan preferred post type: %w", scanErr)
			return EngagementPattern{}, err
		}
		preferred = append(preferred, t)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("iterate preferred post types: %w", rowsErr)
		return EngagementPattern{}, err
	}

	return EngagementPattern{
		TotalLikes:         totalLikes,
		TotalComments:      totalComments,
		AvgLikesPerDay:     float64(totalLikes) / float64(windowDays),
		PreferredPostTypes: preferred,
	}, nil
}

// ActiveHours returns the user's top five UTC hours of day across their own
// likes, comments, and posts within the window.
func (g *PostgresGateway) ActiveHours(ctx context.Context, userID, tenantID string, windowDays int) (hours []int, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "likes", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("active_hours", start, err)
	}()

	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}
	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)

	rows, queryErr := g.db.QueryContext(ctx, `
		SELECT h, COUNT(*) AS cnt
		FROM (
			SELECT EXTRACT(HOUR FROM l.created_at AT TIME ZONE 'UTC')::int AS h
			FROM likes l JOIN posts p ON p.id = l.post_id
			WHERE l.user_id = $1 AND p.tenant_id = $2 AND l.created_at >= $3
			UNION ALL
			SELECT EXTRACT(HOUR FROM c.created_at AT TIME ZONE 'UTC')::int
			FROM comments c JOIN posts p ON p.id = c.post_id
			WHERE c.user_id = $1 AND p.tenant_id = $2
			  AND c.deleted_at IS NULL AND c.created_at >= $3
			UNION ALL
			SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int
			FROM posts
			WHERE author_id = $1 AND tenant_id = $2
			  AND deleted_at IS NULL AND created_at >= $3
		) events
		GROUP BY h
		ORDER BY cnt DESC, h ASC
		LIMIT $4`,
		userID, tenantID, cutoff, MaxActiveHours)
	if queryErr != nil {
		err = fmt.Errorf("query active hours: %w", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h, cnt int
		if scanErr := rows.Scan(&h, &cnt); scanErr != nil {
			err = fmt.Errorf("scan active hour: %w", scanErr)
			return nil, err
		}
		hours = append(hours, h)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("iterate active hours: %w", rowsErr)
		return nil, err
	}
	return hours, nil
}

// PostEngagementMetrics returns engagement counters with derived velocity
// and engagement rate. An unknown post yields zero counters.
func (g *PostgresGateway) PostEngagementMetrics(ctx context.Context, p post.PostRef) (engagement PostEngagement, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("post_engagement_metrics", start, err)
	}()

	var likes, comments, views int
	row := g.db.QueryRowContext(ctx, `
		SELECT like_count, comment_count, view_count
		FROM posts
		WHERE id = $1`,
		p.ID)
	if scanErr := row.Scan(&likes, &comments, &views); scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = fmt.Errorf("query post counters: %w", scanErr)
		return PostEngagement{}, err
	}

	return ComputeEngagement(likes, comments, views, p.CreatedAtUTC(), g.now()), nil
}

// TenantPercentiles computes the p50/p90 like-count and velocity snapshot in
// SQL via percentile_cont over the tenant's recent non-deleted posts.
func (g *PostgresGateway) TenantPercentiles(ctx context.Context, tenantID string, lookbackHours int) (pct TenantPercentiles, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() {
		endSpan(err)
		g.metrics.Observe("tenant_percentiles", start, err)
	}()

	if lookbackHours <= 0 {
		lookbackHours = DefaultPercentileLookbackHours
	}
	now := g.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	row := g.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY like_count), 0),
			COALESCE(percentile_cont(0.9) WITHIN GROUP (ORDER BY like_count), 0),
			COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY velocity), 0),
			COALESCE(percentile_cont(0.9) WITHIN GROUP (ORDER BY velocity), 0)
		FROM (
			SELECT like_count,
			       (like_count + comment_count * 2)::float8 /
			       GREATEST(EXTRACT(EPOCH FROM ($3::timestamptz - created_at)) / 3600.0, 0.1) AS velocity
			FROM posts
			WHERE tenant_id = $1 AND deleted_at IS NULL AND created_at >= $2
		) recent`,
		tenantID, cutoff, now)

	if scanErr := row.Scan(&pct.LikesP50, &pct.LikesP90, &pct.VelocityP50, &pct.VelocityP90); scanErr != nil {
		err = fmt.Errorf("query tenant percentiles: %w", scanErr)
		return TenantPercentiles{}, err
	}
	return pct, nil
}
