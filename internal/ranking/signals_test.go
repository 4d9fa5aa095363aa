package ranking

import (
	"math"
	"testing"

	"github.com/gymhive/feedrank/internal/analytics"
)

func TestContentAffinityScore(t *testing.T) {
	tests := []struct {
		name     string
		primary  string
		postCats []string
		want     float64
	}{
		{"exact match", "yoga", []string{"yoga", "meditation"}, 1.0},
		{"related match", "yoga", []string{"pilates"}, 0.7},
		{"no user history", "", []string{"yoga"}, 0.5},
		{"untagged post", "yoga", nil, 0.3},
		{"unrelated", "yoga", []string{"boxing"}, 0.2},
		{"exact beats related", "crossfit", []string{"strength", "crossfit"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentAffinityScore(tt.primary, tt.postCats)
			if got != tt.want {
				t.Errorf("ContentAffinityScore(%q, %v) = %v, want %v", tt.primary, tt.postCats, got, tt.want)
			}
		})
	}
}

func TestSocialAffinityScore(t *testing.T) {
	tests := []struct {
		name         string
		rel          analytics.Relationship
		interactions int
		want         float64
	}{
		{"trainer", analytics.RelationTrainer, 0, 1.0},
		{"trainee", analytics.RelationTrainee, 0, 0.8},
		{"following", analytics.RelationFollowing, 0, 0.7},
		{"frequent contact", analytics.RelationNone, 5, 0.6},
		{"occasional contact", analytics.RelationNone, 1, 0.4},
		{"same tenant stranger", analytics.RelationSameTenant, 0, 0.2},
		{"stranger", analytics.RelationNone, 0, 0.1},
		{"interactions trump same tenant", analytics.RelationSameTenant, 7, 0.6},
		{"relationship trumps interactions", analytics.RelationFollowing, 20, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SocialAffinityScore(tt.rel, tt.interactions)
			if got != tt.want {
				t.Errorf("SocialAffinityScore(%v, %d) = %v, want %v", tt.rel, tt.interactions, got, tt.want)
			}
		})
	}
}

func TestPastEngagementScore(t *testing.T) {
	tests := []struct {
		name     string
		pattern  analytics.EngagementPattern
		postType string
		want     float64
	}{
		{"no history is neutral", analytics.EngagementPattern{}, "workout", 0.5},
		{
			"baseline only",
			analytics.EngagementPattern{TotalLikes: 2, AvgLikesPerDay: 0.07},
			"workout",
			0.2,
		},
		{
			"preferred type",
			analytics.EngagementPattern{TotalLikes: 2, AvgLikesPerDay: 0.07, PreferredPostTypes: []string{"workout"}},
			"workout",
			0.6,
		},
		{
			"moderate activity",
			analytics.EngagementPattern{TotalLikes: 40, AvgLikesPerDay: 1.3},
			"workout",
			0.3,
		},
		{
			"high activity",
			analytics.EngagementPattern{TotalLikes: 100, AvgLikesPerDay: 3.3},
			"workout",
			0.4,
		},
		{
			"all bonuses capped at one",
			analytics.EngagementPattern{TotalLikes: 100, AvgLikesPerDay: 4.0, PreferredPostTypes: []string{"workout", "progress"}},
			"workout",
			0.8,
		},
		{
			"type mismatch",
			analytics.EngagementPattern{TotalLikes: 100, AvgLikesPerDay: 4.0, PreferredPostTypes: []string{"progress"}},
			"workout",
			0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PastEngagementScore(tt.pattern, tt.postType)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PastEngagementScore(%+v, %q) = %v, want %v", tt.pattern, tt.postType, got, tt.want)
			}
		})
	}
}

func TestRecencyWeight(t *testing.T) {
	tests := []struct {
		name  string
		hours float64
		want  float64
	}{
		{"fresh", 0, 1.0},
		{"future timestamp clamps", -2, 1.0},
		{"one half-life", 6, 0.5},
		{"two half-lives", 12, 0.25},
		{"one day", 24, 0.0625},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecencyWeight(tt.hours)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RecencyWeight(%v) = %v, want %v", tt.hours, got, tt.want)
			}
		})
	}
}

func TestRecencyWeightMonotone(t *testing.T) {
	prev := RecencyWeight(0)
	for h := 1.0; h <= 72; h++ {
		cur := RecencyWeight(h)
		if cur >= prev {
			t.Fatalf("RecencyWeight not strictly decreasing at %v hours: %v >= %v", h, cur, prev)
		}
		prev = cur
	}
}

func TestActiveHourWeight(t *testing.T) {
	active := []int{7, 18, 6, 9, 12}

	tests := []struct {
		name string
		hour int
		want float64
	}{
		{"top hour", 7, 1.0},
		{"second hour", 18, 1.0},
		{"third hour", 6, 0.7},
		{"fifth hour", 12, 0.7},
		{"no overlap", 3, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveHourWeight(tt.hour, active)
			if got != tt.want {
				t.Errorf("ActiveHourWeight(%d, %v) = %v, want %v", tt.hour, active, got, tt.want)
			}
		})
	}

	if got := ActiveHourWeight(7, nil); got != 0.5 {
		t.Errorf("ActiveHourWeight with no history = %v, want 0.5", got)
	}
}

func TestTimingScore(t *testing.T) {
	// Fresh post, no active-hour history: 0.7*1.0 + 0.3*0.5 = 0.85.
	if got := TimingScore(0, 12, nil); math.Abs(got-0.85) > 1e-9 {
		t.Errorf("TimingScore(0, 12, nil) = %v, want 0.85", got)
	}

	// Fresh post at the user's top hour maxes out.
	if got := TimingScore(0, 7, []int{7, 18}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("TimingScore at top hour = %v, want 1.0", got)
	}

	// Six hours old at the top hour: 0.7*0.5 + 0.3*1.0 = 0.65.
	if got := TimingScore(6, 7, []int{7, 18}); math.Abs(got-0.65) > 1e-9 {
		t.Errorf("TimingScore(6h, top hour) = %v, want 0.65", got)
	}
}

func TestPopularityScore(t *testing.T) {
	pct := analytics.TenantPercentiles{
		LikesP50:    10,
		LikesP90:    40,
		VelocityP50: 2,
		VelocityP90: 8,
	}

	tests := []struct {
		name string
		m    analytics.PostEngagement
		pct  analytics.TenantPercentiles
		want float64
	}{
		{
			// trending 4/8=0.5, absolute 20/40=0.5, rate 0.15/0.3=0.5
			"mid pack",
			analytics.PostEngagement{Likes: 20, Velocity: 4, EngagementRate: 0.15},
			pct,
			0.5,
		},
		{
			// every component saturates at its ceiling
			"viral post caps at one",
			analytics.PostEngagement{Likes: 500, Velocity: 100, EngagementRate: 0.9},
			pct,
			1.0,
		},
		{
			// no tenant baseline: trending 0.5, absolute 0.5 (has likes),
			// rate 0.1/0.3 -> 0.5*0.5 + 0.5*0.3 + (1.0/3)*0.2
			"no baseline with likes",
			analytics.PostEngagement{Likes: 3, Velocity: 1, EngagementRate: 0.1},
			analytics.TenantPercentiles{},
			0.5*0.5 + 0.5*0.3 + (0.1/0.3)*0.2,
		},
		{
			// velocity baseline without a likes baseline (comment-only
			// tenant): trending 2/4=0.5, absolute neutral (has likes)
			"partial baseline",
			analytics.PostEngagement{Likes: 3, Velocity: 2, EngagementRate: 0.15},
			analytics.TenantPercentiles{VelocityP50: 1, VelocityP90: 4},
			0.5*0.5 + 0.5*0.3 + 0.5*0.2,
		},
		{
			// no baseline, no engagement at all: only the neutral trending share
			"cold tenant cold post",
			analytics.PostEngagement{},
			analytics.TenantPercentiles{},
			0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PopularityScore(tt.m, tt.pct)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PopularityScore(%+v) = %v, want %v", tt.m, got, tt.want)
			}
		})
	}
}
