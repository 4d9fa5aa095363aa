package analytics

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/gymhive/feedrank/internal/post"
)

// dockerAvailable reports whether a Docker daemon is reachable. The
// testcontainers host lookup panics instead of returning an error when no
// daemon can be found, so the check recovers and treats a panic as
// unavailable.
func dockerAvailable(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	return provider.Health(ctx) == nil
}

// The availability check must return cleanly on hosts without a Docker
// daemon; a panic here would fail the whole package instead of skipping
// the integration tests.
func TestDockerAvailableReturnsCleanly(t *testing.T) {
	_ = dockerAvailable(context.Background())
}

// startTestPostgres launches a disposable Postgres with the read-surface
// schema applied. Skips the test when Docker is unavailable.
func startTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	if !dockerAvailable(ctx) {
		t.Skip("Docker not available, skipping integration test")
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("feedrank"),
		tcpostgres.WithUsername("feedrank"),
		tcpostgres.WithPassword("feedrank"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_read_surface.up.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return db
}

func TestPostgresGateway(t *testing.T) {
	db := startTestPostgres(t)
	ctx := context.Background()

	gw := NewPostgresGateway(db)
	gw.SetClock(func() time.Time { return fixedNow })

	exec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("seed query failed: %v", err)
		}
	}

	// Posts: five recent posts in t1 with like counts 0/10/20/30/40, one
	// deleted, one stale, one in another tenant.
	likeCounts := []int{0, 10, 20, 30, 40}
	for i, likes := range likeCounts {
		exec(`INSERT INTO posts (id, author_id, tenant_id, created_at, post_type, like_count, comment_count, view_count)
		      VALUES ($1, 'author', 't1', $2, $3, $4, $5, $6)`,
			"p"+string(rune('a'+i)), hoursAgo(10), post.TypeWorkout, likes, 5, 100)
	}
	exec(`INSERT INTO posts (id, author_id, tenant_id, created_at, like_count, deleted_at)
	      VALUES ('deleted', 'author', 't1', $1, 1000, $2)`, hoursAgo(1), hoursAgo(0.5))
	exec(`INSERT INTO posts (id, author_id, tenant_id, created_at, like_count)
	      VALUES ('stale', 'author', 't1', $1, 1000)`, hoursAgo(48))
	exec(`INSERT INTO posts (id, author_id, tenant_id, created_at, like_count)
	      VALUES ('foreign', 'other_author', 't2', $1, 1000)`, hoursAgo(1))
	exec(`INSERT INTO posts (id, author_id, tenant_id, created_at, post_type)
	      VALUES ('progress1', 'author2', 't1', $1, $2)`, hoursAgo(20), post.TypeProgress)

	exec(`INSERT INTO post_tags (post_id, tag) VALUES ('pa', 'recovery'), ('pa', 'yoga')`)

	// u1's interactions: likes on author's posts pa/pb and one on the
	// progress post, one comment (plus one soft-deleted comment).
	exec(`INSERT INTO likes (user_id, post_id, created_at) VALUES
	      ('u1', 'pa', $1), ('u1', 'pb', $2), ('u1', 'progress1', $3)`,
		daysAgo(1), daysAgo(2), daysAgo(3))
	exec(`INSERT INTO comments (id, user_id, post_id, created_at) VALUES ('c1', 'u1', 'pa', $1)`, daysAgo(1))
	exec(`INSERT INTO comments (id, user_id, post_id, created_at, deleted_at) VALUES ('c2', 'u1', 'pb', $1, $1)`, daysAgo(1))

	// Attendance: yoga twice, spin once, stale boxing.
	exec(`INSERT INTO class_attendance (user_id, tenant_id, category, attended_at) VALUES
	      ('u1', 't1', 'yoga', $1), ('u1', 't1', 'yoga', $2), ('u1', 't1', 'spin', $1),
	      ('u1', 't1', 'boxing', $3)`,
		daysAgo(5), daysAgo(10), daysAgo(120))

	// Relationships and membership.
	exec(`INSERT INTO relationships (tenant_id, user_id, other_user_id, relation) VALUES
	      ('t1', 'u1', 'coach', 'following'), ('t1', 'u1', 'coach', 'trainer')`)
	exec(`INSERT INTO tenant_members (tenant_id, user_id) VALUES
	      ('t1', 'u1'), ('t1', 'coach'), ('t1', 'author'), ('t1', 'author2')`)

	t.Run("primary category", func(t *testing.T) {
		got, err := gw.PrimaryCategory(ctx, "u1", "t1")
		if err != nil {
			t.Fatalf("PrimaryCategory() error = %v", err)
		}
		if got != "yoga" {
			t.Errorf("PrimaryCategory() = %q, want yoga", got)
		}
	})

	t.Run("primary category no history", func(t *testing.T) {
		got, err := gw.PrimaryCategory(ctx, "nobody", "t1")
		if err != nil {
			t.Fatalf("PrimaryCategory() error = %v", err)
		}
		if got != "" {
			t.Errorf("PrimaryCategory() = %q, want empty", got)
		}
	})

	t.Run("post categories", func(t *testing.T) {
		tags, err := gw.PostCategories(ctx, post.PostRef{ID: "pa", AuthorID: "author", CreatedAt: hoursAgo(10)})
		if err != nil {
			t.Fatalf("PostCategories() error = %v", err)
		}
		if len(tags) != 2 || tags[0] != "recovery" || tags[1] != "yoga" {
			t.Errorf("PostCategories() = %v, want [recovery yoga]", tags)
		}
	})

	t.Run("relationship cascade", func(t *testing.T) {
		rel, err := gw.RelationshipType(ctx, "u1", "coach", "t1")
		if err != nil {
			t.Fatalf("RelationshipType() error = %v", err)
		}
		if rel != RelationTrainer {
			t.Errorf("RelationshipType() = %v, want trainer (beats following)", rel)
		}
	})

	t.Run("relationship same tenant", func(t *testing.T) {
		rel, err := gw.RelationshipType(ctx, "u1", "author", "t1")
		if err != nil {
			t.Fatalf("RelationshipType() error = %v", err)
		}
		if rel != RelationSameTenant {
			t.Errorf("RelationshipType() = %v, want same_tenant", rel)
		}
	})

	t.Run("relationship none", func(t *testing.T) {
		rel, err := gw.RelationshipType(ctx, "u1", "other_author", "t1")
		if err != nil {
			t.Fatalf("RelationshipType() error = %v", err)
		}
		if rel != RelationNone {
			t.Errorf("RelationshipType() = %v, want none", rel)
		}
	})

	t.Run("past interactions", func(t *testing.T) {
		count, err := gw.PastInteractionCount(ctx, "u1", "author", 30)
		if err != nil {
			t.Fatalf("PastInteractionCount() error = %v", err)
		}
		// 2 likes + 1 live comment; soft-deleted comment excluded.
		if count != 3 {
			t.Errorf("PastInteractionCount() = %d, want 3", count)
		}
	})

	t.Run("engagement patterns", func(t *testing.T) {
		p, err := gw.EngagementPatterns(ctx, "u1", "t1", 30)
		if err != nil {
			t.Fatalf("EngagementPatterns() error = %v", err)
		}
		if p.TotalLikes != 3 || p.TotalComments != 1 {
			t.Errorf("EngagementPatterns() totals = %d likes/%d comments, want 3/1", p.TotalLikes, p.TotalComments)
		}
		if len(p.PreferredPostTypes) != 2 || p.PreferredPostTypes[0] != post.TypeWorkout || p.PreferredPostTypes[1] != post.TypeProgress {
			t.Errorf("PreferredPostTypes = %v, want [workout progress]", p.PreferredPostTypes)
		}
	})

	t.Run("engagement patterns no likes", func(t *testing.T) {
		p, err := gw.EngagementPatterns(ctx, "nobody", "t1", 30)
		if err != nil {
			t.Fatalf("EngagementPatterns() error = %v", err)
		}
		if p.TotalLikes != 0 || len(p.PreferredPostTypes) != 0 {
			t.Errorf("EngagementPatterns() = %+v, want zero value", p)
		}
	})

	t.Run("active hours", func(t *testing.T) {
		hours, err := gw.ActiveHours(ctx, "u1", "t1", 30)
		if err != nil {
			t.Fatalf("ActiveHours() error = %v", err)
		}
		if len(hours) == 0 {
			t.Fatal("ActiveHours() empty, want at least one hour from seeded likes")
		}
		for _, h := range hours {
			if h < 0 || h > 23 {
				t.Errorf("ActiveHours() contains out-of-range hour %d", h)
			}
		}
	})

	t.Run("post engagement metrics", func(t *testing.T) {
		m, err := gw.PostEngagementMetrics(ctx, post.PostRef{ID: "pb", AuthorID: "author", CreatedAt: hoursAgo(10)})
		if err != nil {
			t.Fatalf("PostEngagementMetrics() error = %v", err)
		}
		// velocity = (10 + 5*2) / 10h = 2.0
		if math.Abs(m.Velocity-2.0) > 1e-9 {
			t.Errorf("Velocity = %f, want 2.0", m.Velocity)
		}
		if math.Abs(m.EngagementRate-0.2) > 1e-9 {
			t.Errorf("EngagementRate = %f, want 0.2", m.EngagementRate)
		}
	})

	t.Run("tenant percentiles", func(t *testing.T) {
		pct, err := gw.TenantPercentiles(ctx, "t1", 24)
		if err != nil {
			t.Fatalf("TenantPercentiles() error = %v", err)
		}
		// Six live posts in the window: like counts 0/10/20/30/40 plus the
		// untagged progress post at 0 likes. Deleted, stale, and foreign
		// posts are excluded.
		if pct.LikesP90 >= 1000 {
			t.Errorf("LikesP90 = %f: deleted/stale/foreign posts leaked into the snapshot", pct.LikesP90)
		}
		if pct.LikesP90 <= pct.LikesP50 {
			t.Errorf("LikesP90 (%f) should exceed LikesP50 (%f)", pct.LikesP90, pct.LikesP50)
		}
		if pct.VelocityP90 <= 0 {
			t.Errorf("VelocityP90 = %f, want > 0", pct.VelocityP90)
		}
	})

	t.Run("tenant percentiles empty window", func(t *testing.T) {
		pct, err := gw.TenantPercentiles(ctx, "empty-tenant", 24)
		if err != nil {
			t.Fatalf("TenantPercentiles() error = %v", err)
		}
		if !pct.IsZero() {
			t.Errorf("TenantPercentiles() = %+v, want zero value", pct)
		}
	})

	t.Run("percentile_cont agrees with in-process percentile", func(t *testing.T) {
		pct, err := gw.TenantPercentiles(ctx, "t1", 24)
		if err != nil {
			t.Fatalf("TenantPercentiles() error = %v", err)
		}
		values := []float64{0, 0, 10, 20, 30, 40}
		if math.Abs(pct.LikesP50-Percentile(values, 0.5)) > 1e-6 {
			t.Errorf("LikesP50 = %f, want %f", pct.LikesP50, Percentile(values, 0.5))
		}
		if math.Abs(pct.LikesP90-Percentile(values, 0.9)) > 1e-6 {
			t.Errorf("LikesP90 = %f, want %f", pct.LikesP90, Percentile(values, 0.9))
		}
	})
}
