// Package post provides the candidate-post domain types consumed by the
// feed ranking engine.
package post

import (
	"errors"
	"slices"
	"time"
)

// Post type constants define the content categories a post can carry.
// The candidate-selection layer guarantees PostType is one of these values.
const (
	// TypeWorkout marks a logged workout or training session post.
	TypeWorkout = "workout"

	// TypeProgress marks a progress update (measurements, photos, PRs).
	TypeProgress = "progress"

	// TypeClassRecap marks a post recapping a class or group session.
	TypeClassRecap = "class_recap"

	// TypeAnnouncement marks a tenant-level announcement post.
	TypeAnnouncement = "announcement"

	// TypeGeneral marks free-form posts with no specific category.
	TypeGeneral = "general"
)

// AllowedTypes is the exhaustive list of valid post types.
var AllowedTypes = []string{
	TypeWorkout,
	TypeProgress,
	TypeClassRecap,
	TypeAnnouncement,
	TypeGeneral,
}

// Common errors for candidate validation.
var (
	ErrMissingID        = errors.New("post id is required")
	ErrMissingAuthorID  = errors.New("post author id is required")
	ErrMissingCreatedAt = errors.New("post created_at is required")
	ErrInvalidPostType  = errors.New("invalid post type")
)

// PostRef is the minimal candidate shape supplied by the feed-assembly
// caller. It carries just enough to score a post; engagement counts and
// tags are resolved through the analytics gateway.
type PostRef struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	PostType  string    `json:"post_type"`
}

// Validate checks that the candidate carries the fields scoring depends on.
// A zero CreatedAt would make every time-based signal meaningless, so it is
// rejected up front.
func (p PostRef) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.AuthorID == "" {
		return ErrMissingAuthorID
	}
	if p.CreatedAt.IsZero() {
		return ErrMissingCreatedAt
	}
	if p.PostType != "" && !slices.Contains(AllowedTypes, p.PostType) {
		return ErrInvalidPostType
	}
	return nil
}

// CreatedAtUTC returns the creation timestamp normalized to UTC.
// All hour-delta and hour-of-day computations in the engine operate on UTC;
// timestamps without an explicit zone are treated as already being UTC.
func (p PostRef) CreatedAtUTC() time.Time {
	return p.CreatedAt.UTC()
}

// categoryGroups maps each known tag category to a coarse group used for
// related-category matching. Two distinct categories that share a group are
// considered related (partial content-affinity match).
var categoryGroups = map[string]string{
	"yoga":         "mind_body",
	"pilates":      "mind_body",
	"meditation":   "mind_body",
	"strength":     "resistance",
	"powerlifting": "resistance",
	"crossfit":     "resistance",
	"hiit":         "conditioning",
	"spin":         "conditioning",
	"running":      "conditioning",
	"swimming":     "conditioning",
	"boxing":       "combat",
	"mma":          "combat",
	"nutrition":    "lifestyle",
	"recovery":     "lifestyle",
}

// RelatedCategories reports whether two distinct categories belong to the
// same category group. Identical categories are not "related"; they are an
// exact match and handled separately by the content-affinity signal.
func RelatedCategories(a, b string) bool {
	if a == b {
		return false
	}
	ga, ok := categoryGroups[a]
	if !ok {
		return false
	}
	gb, ok := categoryGroups[b]
	if !ok {
		return false
	}
	return ga == gb
}
