package ranking

import (
	"math"
	"slices"

	"github.com/gymhive/feedrank/internal/analytics"
	"github.com/gymhive/feedrank/internal/post"
)

// Content affinity ladder. The no-match floor is 0.2 rather than 0 so a
// feed never collapses to a single category.
const (
	contentExactMatch   = 1.0
	contentRelatedMatch = 0.7
	contentNoHistory    = 0.5 // new users are not penalized
	contentUntaggedPost = 0.3
	contentNoMatch      = 0.2
)

// ContentAffinityScore compares the user's primary category against a
// post's categories.
//
// Parameters:
//   - primaryCategory: the user's most-attended category, "" when unknown
//   - postCategories: the tags attached to the post
//
// Returns 1.0 on an exact match, 0.7 on a related-category match, 0.5 when
// the user has no category history, 0.3 when the post is untagged, and 0.2
// otherwise.
func ContentAffinityScore(primaryCategory string, postCategories []string) float64 {
	if primaryCategory == "" {
		return contentNoHistory
	}
	if len(postCategories) == 0 {
		return contentUntaggedPost
	}
	if slices.Contains(postCategories, primaryCategory) {
		return contentExactMatch
	}
	for _, c := range postCategories {
		if post.RelatedCategories(primaryCategory, c) {
			return contentRelatedMatch
		}
	}
	return contentNoMatch
}

// Social affinity ladder, ordered by relationship strength.
const (
	socialTrainer           = 1.0
	socialTrainee           = 0.8
	socialFollowing         = 0.7
	socialFrequentContact   = 0.6 // 5+ past interactions
	socialOccasionalContact = 0.4 // 1-4 past interactions
	socialSameTenant        = 0.2
	socialStranger          = 0.1
)

// frequentInteractionThreshold is the past-interaction count at which an
// author counts as a frequent contact.
const frequentInteractionThreshold = 5

// SocialAffinityScore maps a relationship and past-interaction count to a
// social affinity score. Self-posts are handled by the engine before this
// is consulted.
func SocialAffinityScore(rel analytics.Relationship, pastInteractions int) float64 {
	switch rel {
	case analytics.RelationTrainer:
		return socialTrainer
	case analytics.RelationTrainee:
		return socialTrainee
	case analytics.RelationFollowing:
		return socialFollowing
	}

	if pastInteractions >= frequentInteractionThreshold {
		return socialFrequentContact
	}
	if pastInteractions >= 1 {
		return socialOccasionalContact
	}

	if rel == analytics.RelationSameTenant {
		return socialSameTenant
	}
	return socialStranger
}

// Past engagement contributions.
const (
	pastEngNeutral          = 0.5 // no like history to personalize against
	pastEngPreferredType    = 0.4
	pastEngCategoryBaseline = 0.2 // flat stand-in for category preference matching
	pastEngHighActivity     = 0.2 // >= 3 likes/day
	pastEngModerateActivity = 0.1 // >= 1 like/day

	highActivityLikesPerDay     = 3.0
	moderateActivityLikesPerDay = 1.0
)

// PastEngagementScore scores how well a post matches the user's own
// engagement habits. A user with no likes in the window gets the neutral
// 0.5 rather than a penalty.
func PastEngagementScore(pattern analytics.EngagementPattern, postType string) float64 {
	if pattern.TotalLikes == 0 {
		return pastEngNeutral
	}

	score := pastEngCategoryBaseline
	if postType != "" && slices.Contains(pattern.PreferredPostTypes, postType) {
		score += pastEngPreferredType
	}
	if pattern.AvgLikesPerDay >= highActivityLikesPerDay {
		score += pastEngHighActivity
	} else if pattern.AvgLikesPerDay >= moderateActivityLikesPerDay {
		score += pastEngModerateActivity
	}

	return Clamp(score)
}

// Recency decay: half-life of 6 hours.
const recencyHalfLifeHours = 6.0

// decayLambda is ln(2) / half-life, so e^(-lambda*6h) = 0.5.
var decayLambda = math.Ln2 / recencyHalfLifeHours

// RecencyWeight computes the exponential recency component e^(-lambda * h)
// for a post h hours old. Posts with a future timestamp score 1.0.
func RecencyWeight(hoursSincePost float64) float64 {
	if hoursSincePost <= 0 {
		return 1.0
	}
	return math.Exp(-decayLambda * hoursSincePost)
}

// Active-hour match levels.
const (
	activeHourTopMatch  = 1.0 // creation hour in the user's top 2
	activeHourNearMatch = 0.7 // creation hour in the user's top 5
	activeHourNeutral   = 0.5 // no overlap, or no active-hour history
)

// topActiveHours is how many leading active hours count as a strong match.
const topActiveHours = 2

// ActiveHourWeight scores how well a post's creation hour lines up with the
// user's active hours (frequency-ranked, strongest first).
func ActiveHourWeight(postHour int, activeHours []int) float64 {
	for i, h := range activeHours {
		if h != postHour {
			continue
		}
		if i < topActiveHours {
			return activeHourTopMatch
		}
		return activeHourNearMatch
	}
	return activeHourNeutral
}

// Timing blend: recency dominates, active-hour match adjusts.
const (
	timingRecencyShare    = 0.7
	timingActiveHourShare = 0.3
)

// TimingScore blends recency decay with the active-hour match.
func TimingScore(hoursSincePost float64, postHour int, activeHours []int) float64 {
	recency := RecencyWeight(hoursSincePost)
	match := ActiveHourWeight(postHour, activeHours)
	return Clamp(recency*timingRecencyShare + match*timingActiveHourShare)
}

// Popularity blend and normalization constants.
const (
	popularityTrendingShare = 0.5
	popularityAbsoluteShare = 0.3
	popularityRateShare     = 0.2

	// popularityNeutral is used for the trending and absolute components
	// when the tenant has no percentile baseline to normalize against.
	popularityNeutral = 0.5

	// excellentEngagementRate is the engagement-per-view ceiling: a 30%
	// rate normalizes to a full rate component.
	excellentEngagementRate = 0.3
)

// popularityBlend combines the three normalized popularity components.
func popularityBlend(trending, absolute, rate float64) float64 {
	return Clamp(trending*popularityTrendingShare +
		absolute*popularityAbsoluteShare +
		rate*popularityRateShare)
}

// PopularityScore rates a post's engagement relative to its tenant's recent
// baseline: trending velocity (50%), absolute like count (30%), and
// engagement rate per view (20%).
func PopularityScore(m analytics.PostEngagement, pct analytics.TenantPercentiles) float64 {
	rate := math.Min(m.EngagementRate/excellentEngagementRate, 1.0)

	// A tenant with no recent posts has no baseline to normalize against:
	// trending falls back to neutral and any likes at all earn partial
	// absolute credit.
	if pct.IsZero() {
		absolute := 0.0
		if m.Likes > 0 {
			absolute = popularityNeutral
		}
		return popularityBlend(popularityNeutral, absolute, rate)
	}

	trending := popularityNeutral
	if pct.VelocityP90 > 0 {
		trending = math.Min(m.Velocity/pct.VelocityP90, 1.0)
	}

	absolute := 0.0
	if pct.LikesP90 > 0 {
		absolute = math.Min(float64(m.Likes)/pct.LikesP90, 1.0)
	} else if m.Likes > 0 {
		absolute = popularityNeutral
	}

	return popularityBlend(trending, absolute, rate)
}
