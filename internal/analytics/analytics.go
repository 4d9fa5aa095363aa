// Package analytics provides the read-only, tenant-scoped query surface the
// ranking engine draws its signals from. Each operation answers one narrow
// analytical question; "no data" conditions resolve to documented neutral
// values and never surface as errors. Only infrastructure failures flow
// through the error return.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/gymhive/feedrank/internal/post"
)

// Relationship classifies how a user relates to another user within a
// tenant, ordered by strength.
type Relationship string

const (
	// RelationTrainer means the other user is the user's trainer.
	RelationTrainer Relationship = "trainer"

	// RelationTrainee means the other user is one of the user's trainees.
	RelationTrainee Relationship = "trainee"

	// RelationFollowing means the user follows the other user.
	RelationFollowing Relationship = "following"

	// RelationSameTenant means both users belong to the tenant but have no
	// explicit relationship.
	RelationSameTenant Relationship = "same_tenant"

	// RelationNone means the other user has no membership in the tenant.
	RelationNone Relationship = "none"
)

// Window defaults shared by all gateway implementations.
const (
	// DefaultInteractionWindowDays bounds past-interaction and engagement
	// pattern lookups.
	DefaultInteractionWindowDays = 30

	// DefaultPercentileLookbackHours bounds the tenant percentile window.
	DefaultPercentileLookbackHours = 24

	// PrimaryCategoryWindowDays bounds the class-attendance lookup behind
	// PrimaryCategory.
	PrimaryCategoryWindowDays = 90

	// MaxActiveHours is how many top hours ActiveHours returns.
	MaxActiveHours = 5

	// MaxPreferredPostTypes is how many top post types EngagementPatterns
	// returns.
	MaxPreferredPostTypes = 2
)

// EngagementPattern summarizes a user's recent engagement behavior.
// The zero value is the documented "no history" result.
type EngagementPattern struct {
	TotalLikes         int      `json:"total_likes"`
	TotalComments      int      `json:"total_comments"`
	AvgLikesPerDay     float64  `json:"avg_likes_per_day"`
	PreferredPostTypes []string `json:"preferred_post_types"` // top 2 by like count
}

// PostEngagement carries a post's raw engagement counters plus the derived
// velocity and engagement-rate figures.
type PostEngagement struct {
	Likes          int     `json:"likes"`
	Comments       int     `json:"comments"`
	Views          int     `json:"views"`
	Velocity       float64 `json:"velocity"`        // weighted engagement per hour since creation
	EngagementRate float64 `json:"engagement_rate"` // weighted engagement per view
}

// TenantPercentiles is a tenant-scoped snapshot of the 50th and 90th
// percentile of raw like counts and engagement velocity across the tenant's
// recent posts. The zero value is the documented "no recent posts" result.
type TenantPercentiles struct {
	LikesP50    float64 `json:"likes_p50"`
	LikesP90    float64 `json:"likes_p90"`
	VelocityP50 float64 `json:"velocity_p50"`
	VelocityP90 float64 `json:"velocity_p90"`
}

// IsZero reports whether the snapshot carries no baseline at all.
func (t TenantPercentiles) IsZero() bool {
	return t.LikesP50 == 0 && t.LikesP90 == 0 && t.VelocityP50 == 0 && t.VelocityP90 == 0
}

// Gateway is the analytics query surface consumed by the ranking engine.
// Every operation is read-only and scoped to a single tenant; tenant IDs are
// always passed explicitly, never inferred from ambient state.
//
// Implementations must be safe for concurrent use: a single gateway handle
// is shared across all per-post scoring tasks within a batch.
type Gateway interface {
	// PrimaryCategory returns the user's most-attended class category over
	// the last 90 days, ties broken by attendance count descending then
	// category name ascending. Returns "" when the user has no attendance
	// history.
	PrimaryCategory(ctx context.Context, userID, tenantID string) (string, error)

	// PostCategories returns the tags attached to a post. Empty when the
	// post is untagged.
	PostCategories(ctx context.Context, p post.PostRef) ([]string, error)

	// RelationshipType evaluates the relationship cascade
	// trainer -> trainee -> following, first match wins. With no explicit
	// relationship it returns RelationSameTenant when both users are
	// members of the tenant, otherwise RelationNone.
	RelationshipType(ctx context.Context, userID, otherUserID, tenantID string) (Relationship, error)

	// PastInteractionCount counts likes plus non-deleted comments userID
	// made on otherUserID's posts within the window.
	PastInteractionCount(ctx context.Context, userID, otherUserID string, windowDays int) (int, error)

	// EngagementPatterns summarizes the user's recent engagement. Returns
	// the zero-valued struct when the user has no likes in the window.
	EngagementPatterns(ctx context.Context, userID, tenantID string, windowDays int) (EngagementPattern, error)

	// ActiveHours returns the user's top five most active UTC hours of day,
	// derived from their own likes, comments, and posts, ranked by
	// frequency descending (hour ascending on ties).
	ActiveHours(ctx context.Context, userID, tenantID string, windowDays int) ([]int, error)

	// PostEngagementMetrics returns a post's engagement counters with
	// derived velocity and engagement rate.
	PostEngagementMetrics(ctx context.Context, p post.PostRef) (PostEngagement, error)

	// TenantPercentiles returns the p50/p90 like-count and velocity
	// snapshot over the tenant's non-deleted posts created within the
	// lookback window. Returns the zero-valued struct when the window is
	// empty.
	TenantPercentiles(ctx context.Context, tenantID string, lookbackHours int) (TenantPercentiles, error)
}

// minVelocityHours floors the velocity denominator so posts created moments
// ago do not produce absurd engagement-per-hour figures.
const minVelocityHours = 0.1

// Velocity computes weighted engagement per hour for a post created at the
// given time: (likes + comments*2) / max(hours since creation, 0.1).
func Velocity(likes, comments int, createdAt, now time.Time) float64 {
	hours := now.UTC().Sub(createdAt.UTC()).Hours()
	if hours < minVelocityHours {
		hours = minVelocityHours
	}
	return float64(likes+comments*2) / hours
}

// EngagementRate computes weighted engagement per view:
// (likes + comments*2) / views, or 0 when the post has no views.
func EngagementRate(likes, comments, views int) float64 {
	if views <= 0 {
		return 0
	}
	return float64(likes+comments*2) / float64(views)
}

// ComputeEngagement derives the full PostEngagement for a post from its raw
// counters and creation time.
func ComputeEngagement(likes, comments, views int, createdAt, now time.Time) PostEngagement {
	return PostEngagement{
		Likes:          likes,
		Comments:       comments,
		Views:          views,
		Velocity:       Velocity(likes, comments, createdAt, now),
		EngagementRate: EngagementRate(likes, comments, views),
	}
}

// Percentile computes the p-th percentile (0 <= p <= 1) of values using
// linear interpolation between closest ranks, matching PostgreSQL's
// percentile_cont. Returns 0 for an empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
