package ranking

import "math"

// FeedScore is the ranking result for a single candidate post. Values are
// created fresh per scoring call and never persisted; every component and
// the final score lie in [0, 1] rounded to 4 decimal places.
type FeedScore struct {
	PostID     string  `json:"post_id"`
	FinalScore float64 `json:"final_score"`

	ContentAffinity float64 `json:"content_affinity"`
	SocialAffinity  float64 `json:"social_affinity"`
	PastEngagement  float64 `json:"past_engagement"`
	Timing          float64 `json:"timing"`
	Popularity      float64 `json:"popularity"`
}

// neutralComponent is the score assigned to every component when a post's
// signal computation fails and the engine substitutes a neutral result.
const neutralComponent = 0.5

// NeutralScore returns the all-neutral FeedScore substituted for a post
// whose signals could not be computed. Final and all components are 0.5 so
// a degraded post lands mid-feed instead of sinking or spiking.
func NeutralScore(postID string) FeedScore {
	return FeedScore{
		PostID:          postID,
		FinalScore:      neutralComponent,
		ContentAffinity: neutralComponent,
		SocialAffinity:  neutralComponent,
		PastEngagement:  neutralComponent,
		Timing:          neutralComponent,
		Popularity:      neutralComponent,
	}
}

// Clamp bounds a signal score to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round4 rounds a score to 4 decimal places, the precision of every value
// carried by a FeedScore.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Combine folds clamped component scores into a FeedScore using the given
// weights, rounding every carried value to 4 decimal places.
func Combine(postID string, content, social, pastEng, timing, popularity float64, w *Weights) FeedScore {
	// Components are rounded before combining so the final score is exactly
	// the weighted sum of the reported components.
	content = Round4(Clamp(content))
	social = Round4(Clamp(social))
	pastEng = Round4(Clamp(pastEng))
	timing = Round4(Clamp(timing))
	popularity = Round4(Clamp(popularity))

	final := content*w.ContentAffinity +
		social*w.SocialAffinity +
		pastEng*w.PastEngagement +
		timing*w.Timing +
		popularity*w.Popularity

	return FeedScore{
		PostID:          postID,
		FinalScore:      Round4(final),
		ContentAffinity: content,
		SocialAffinity:  social,
		PastEngagement:  pastEng,
		Timing:          timing,
		Popularity:      popularity,
	}
}
