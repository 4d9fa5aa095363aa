package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gymhive/feedrank/internal/post"
)

// StoredPost is the seed shape for a post held by the in-memory gateway.
type StoredPost struct {
	ID           string
	AuthorID     string
	TenantID     string
	CreatedAt    time.Time
	PostType     string
	Tags         []string
	LikeCount    int
	CommentCount int
	ViewCount    int
	Deleted      bool
}

// Like is a single like event.
type Like struct {
	UserID    string
	PostID    string
	CreatedAt time.Time
}

// Comment is a single comment event with a soft-delete flag.
type Comment struct {
	UserID    string
	PostID    string
	CreatedAt time.Time
	Deleted   bool
}

// Attendance is a single class-attendance record.
type Attendance struct {
	UserID     string
	TenantID   string
	Category   string
	AttendedAt time.Time
}

type storedRelationship struct {
	userID      string
	otherUserID string
	tenantID    string
	relation    Relationship
}

// InMemoryGateway is an in-memory Gateway implementation backed by raw
// event records. Aggregates are computed on demand, mirroring what the SQL
// implementation pushes into the database. Thread-safe via RWMutex.
//
// It backs unit tests and local development; the seed helpers are not part
// of the Gateway contract.
type InMemoryGateway struct {
	mu            sync.RWMutex
	posts         map[string]*StoredPost // post ID -> post
	likes         []Like
	comments      []Comment
	attendance    []Attendance
	relationships []storedRelationship
	members       map[string]map[string]bool // tenant ID -> user ID set
	now           func() time.Time
}

// NewInMemoryGateway creates an empty in-memory gateway using the real clock.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{
		posts:   make(map[string]*StoredPost),
		members: make(map[string]map[string]bool),
		now:     time.Now,
	}
}

// SetClock replaces the gateway's time source. Used by tests to pin "now".
func (g *InMemoryGateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// AddPost seeds a post and registers its author as a tenant member.
func (g *InMemoryGateway) AddPost(p StoredPost) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored := p
	stored.Tags = append([]string(nil), p.Tags...)
	g.posts[p.ID] = &stored
	g.addMemberLocked(p.TenantID, p.AuthorID)
}

// AddLike seeds a like event.
func (g *InMemoryGateway) AddLike(l Like) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.likes = append(g.likes, l)
}

// AddComment seeds a comment event.
func (g *InMemoryGateway) AddComment(c Comment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.comments = append(g.comments, c)
}

// AddAttendance seeds a class-attendance record.
func (g *InMemoryGateway) AddAttendance(a Attendance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attendance = append(g.attendance, a)
}

// AddRelationship seeds an explicit relationship: relation describes what
// otherUserID is to userID within the tenant.
func (g *InMemoryGateway) AddRelationship(userID, otherUserID, tenantID string, relation Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relationships = append(g.relationships, storedRelationship{
		userID:      userID,
		otherUserID: otherUserID,
		tenantID:    tenantID,
		relation:    relation,
	})
	g.addMemberLocked(tenantID, userID)
	g.addMemberLocked(tenantID, otherUserID)
}

// AddMember registers a user as a member of a tenant.
func (g *InMemoryGateway) AddMember(tenantID, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addMemberLocked(tenantID, userID)
}

func (g *InMemoryGateway) addMemberLocked(tenantID, userID string) {
	if tenantID == "" || userID == "" {
		return
	}
	set, ok := g.members[tenantID]
	if !ok {
		set = make(map[string]bool)
		g.members[tenantID] = set
	}
	set[userID] = true
}

// PrimaryCategory returns the user's most-attended category over the last
// 90 days, "" when there is no attendance history.
func (g *InMemoryGateway) PrimaryCategory(ctx context.Context, userID, tenantID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := g.now().UTC().AddDate(0, 0, -PrimaryCategoryWindowDays)
	counts := make(map[string]int)
	for _, a := range g.attendance {
		if a.UserID != userID || a.TenantID != tenantID {
			continue
		}
		if a.AttendedAt.UTC().Before(cutoff) {
			continue
		}
		counts[a.Category]++
	}

	return topCategory(counts), nil
}

// topCategory picks the category with the highest count; ties resolve to the
// lexicographically smallest name for determinism.
func topCategory(counts map[string]int) string {
	best := ""
	bestCount := 0
	for category, count := range counts {
		if count > bestCount || (count == bestCount && bestCount > 0 && category < best) {
			best = category
			bestCount = count
		}
	}
	return best
}

// PostCategories returns the tags attached to a post, nil when the post is
// unknown or untagged.
func (g *InMemoryGateway) PostCategories(ctx context.Context, p post.PostRef) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	stored, ok := g.posts[p.ID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), stored.Tags...), nil
}

// RelationshipType evaluates the relationship cascade, first match wins.
func (g *InMemoryGateway) RelationshipType(ctx context.Context, userID, otherUserID, tenantID string) (Relationship, error) {
	if err := ctx.Err(); err != nil {
		return RelationNone, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, want := range []Relationship{RelationTrainer, RelationTrainee, RelationFollowing} {
		for _, r := range g.relationships {
			if r.tenantID != tenantID || r.userID != userID || r.otherUserID != otherUserID {
				continue
			}
			if r.relation == want {
				return want, nil
			}
		}
	}

	set := g.members[tenantID]
	if set != nil && set[userID] && set[otherUserID] {
		return RelationSameTenant, nil
	}
	return RelationNone, nil
}

// PastInteractionCount counts likes plus non-deleted comments userID made on
// otherUserID's posts within the window.
func (g *InMemoryGateway) PastInteractionCount(ctx context.Context, userID, otherUserID string, windowDays int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)
	count := 0
	for _, l := range g.likes {
		if l.UserID != userID || l.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		if p, ok := g.posts[l.PostID]; ok && p.AuthorID == otherUserID {
			count++
		}
	}
	for _, c := range g.comments {
		if c.UserID != userID || c.Deleted || c.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		if p, ok := g.posts[c.PostID]; ok && p.AuthorID == otherUserID {
			count++
		}
	}
	return count, nil
}

// EngagementPatterns summarizes the user's likes and comments on the
// tenant's posts within the window. A user with no likes in the window gets
// the zero-valued pattern.
func (g *InMemoryGateway) EngagementPatterns(ctx context.Context, userID, tenantID string, windowDays int) (EngagementPattern, error) {
	if err := ctx.Err(); err != nil {
		return EngagementPattern{}, err
	}
	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)

	totalLikes := 0
	typeCounts := make(map[string]int)
	for _, l := range g.likes {
		if l.UserID != userID || l.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		p, ok := g.posts[l.PostID]
		if !ok || p.TenantID != tenantID {
			continue
		}
		totalLikes++
		if p.PostType != "" {
			typeCounts[p.PostType]++
		}
	}

	if totalLikes == 0 {
		return EngagementPattern{}, nil
	}

	totalComments := 0
	for _, c := range g.comments {
		if c.UserID != userID || c.Deleted || c.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		if p, ok := g.posts[c.PostID]; ok && p.TenantID == tenantID {
			totalComments++
		}
	}

	return EngagementPattern{
		TotalLikes:         totalLikes,
		TotalComments:      totalComments,
		AvgLikesPerDay:     float64(totalLikes) / float64(windowDays),
		PreferredPostTypes: topPostTypes(typeCounts, MaxPreferredPostTypes),
	}, nil
}

// topPostTypes returns the n most-liked post types, count descending, type
// name ascending on ties.
func topPostTypes(counts map[string]int, n int) []string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	if len(types) > n {
		types = types[:n]
	}
	return types
}

// ActiveHours returns the user's top five UTC hours of day across their own
// likes, comments, and posts within the window.
func (g *InMemoryGateway) ActiveHours(ctx context.Context, userID, tenantID string, windowDays int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = DefaultInteractionWindowDays
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := g.now().UTC().AddDate(0, 0, -windowDays)
	hourCounts := make(map[int]int)

	for _, l := range g.likes {
		if l.UserID != userID || l.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		if p, ok := g.posts[l.PostID]; ok && p.TenantID == tenantID {
			hourCounts[l.CreatedAt.UTC().Hour()]++
		}
	}
	for _, c := range g.comments {
		if c.UserID != userID || c.Deleted || c.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		if p, ok := g.posts[c.PostID]; ok && p.TenantID == tenantID {
			hourCounts[c.CreatedAt.UTC().Hour()]++
		}
	}
	for _, p := range g.posts {
		if p.AuthorID != userID || p.TenantID != tenantID || p.Deleted {
			continue
		}
		if p.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		hourCounts[p.CreatedAt.UTC().Hour()]++
	}

	if len(hourCounts) == 0 {
		return nil, nil
	}

	hours := make([]int, 0, len(hourCounts))
	for h := range hourCounts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if hourCounts[hours[i]] != hourCounts[hours[j]] {
			return hourCounts[hours[i]] > hourCounts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > MaxActiveHours {
		hours = hours[:MaxActiveHours]
	}
	return hours, nil
}

// PostEngagementMetrics returns engagement counters with derived velocity
// and engagement rate. An unknown post yields zero counters, which the
// engine treats as a cold post rather than an error.
func (g *InMemoryGateway) PostEngagementMetrics(ctx context.Context, p post.PostRef) (PostEngagement, error) {
	if err := ctx.Err(); err != nil {
		return PostEngagement{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	likes, comments, views := 0, 0, 0
	if stored, ok := g.posts[p.ID]; ok {
		likes, comments, views = stored.LikeCount, stored.CommentCount, stored.ViewCount
	}
	return ComputeEngagement(likes, comments, views, p.CreatedAtUTC(), g.now()), nil
}

// TenantPercentiles computes the p50/p90 like-count and velocity snapshot
// over the tenant's non-deleted posts created within the lookback window.
func (g *InMemoryGateway) TenantPercentiles(ctx context.Context, tenantID string, lookbackHours int) (TenantPercentiles, error) {
	if err := ctx.Err(); err != nil {
		return TenantPercentiles{}, err
	}
	if lookbackHours <= 0 {
		lookbackHours = DefaultPercentileLookbackHours
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var likeCounts, velocities []float64
	for _, p := range g.posts {
		if p.TenantID != tenantID || p.Deleted {
			continue
		}
		if p.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		likeCounts = append(likeCounts, float64(p.LikeCount))
		velocities = append(velocities, Velocity(p.LikeCount, p.CommentCount, p.CreatedAt, now))
	}

	if len(likeCounts) == 0 {
		return TenantPercentiles{}, nil
	}

	return TenantPercentiles{
		LikesP50:    Percentile(likeCounts, 0.5),
		LikesP90:    Percentile(likeCounts, 0.9),
		VelocityP50: Percentile(velocities, 0.5),
		VelocityP90: Percentile(velocities, 0.9),
	}, nil
}
