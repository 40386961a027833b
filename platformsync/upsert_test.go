package platformsync

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
	"github.com/go-sql-driver/mysql"
)

func TestUpsertReviewIdempotent(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()
	rec := CanonicalReview{
		BusinessId:   "biz-1",
		Platform:     "google",
		ReviewId:     ReviewNaturalKey("Reviewer A", 1000),
		Rating:       4,
		Text:         "good",
		ReviewerName: "Reviewer A",
		PostedAt:     time.Unix(1000, 0).UTC(),
	}

	outcome, err := upsertReview(ctx, gw, rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != outcomeCreated {
		t.Fatal("first observation must create")
	}

	rec.Text = "edited by reviewer"
	rec.Rating = 5
	outcome, err = upsertReview(ctx, gw, rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != outcomeUpdated {
		t.Fatal("second observation must update, not create")
	}
	if len(gw.reviews) != 1 {
		t.Fatalf("expected 1 stored review, got %d", len(gw.reviews))
	}
	if gw.reviews[0].Text != "edited by reviewer" || gw.reviews[0].Rating != 5 {
		t.Fatalf("platform fields must refresh: %+v", gw.reviews[0])
	}
}

func TestUpsertReviewPreservesEnrichment(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()
	rec := CanonicalReview{
		BusinessId:   "biz-1",
		Platform:     "google",
		ReviewId:     ReviewNaturalKey("Reviewer A", 1000),
		Rating:       4,
		ReviewerName: "Reviewer A",
		PostedAt:     time.Unix(1000, 0).UTC(),
	}
	if _, err := upsertReview(ctx, gw, rec); err != nil {
		t.Fatal(err)
	}

	// Out-of-band enrichment lands between two syncs.
	if err := gw.UpdateReview(ctx, gw.reviews[0].ID, map[string]interface{}{
		"response_draft": "Thank you for the kind words!",
	}); err != nil {
		t.Fatal(err)
	}

	rec.Text = "changed upstream"
	if _, err := upsertReview(ctx, gw, rec); err != nil {
		t.Fatal(err)
	}
	if gw.reviews[0].ResponseDraft != "Thank you for the kind words!" {
		t.Fatal("re-sync must never clear enrichment fields")
	}
	if gw.reviews[0].Text != "changed upstream" {
		t.Fatal("re-sync must still refresh platform fields")
	}
}

// duplicateKeyGateway reports every review create as a duplicate-key
// conflict without ever storing the row, so the post-conflict lookup
// comes back empty.
type duplicateKeyGateway struct {
	*fakeGateway
}

func (g *duplicateKeyGateway) CreateReview(ctx context.Context, review *models.Review) error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
}

func TestUpsertReviewDuplicateKeyWithoutRowErrors(t *testing.T) {
	gw := &duplicateKeyGateway{fakeGateway: newFakeGateway()}
	ctx := context.Background()
	rec := CanonicalReview{
		BusinessId:   "biz-1",
		Platform:     "google",
		ReviewId:     ReviewNaturalKey("Reviewer A", 1000),
		Rating:       4,
		ReviewerName: "Reviewer A",
		PostedAt:     time.Unix(1000, 0).UTC(),
	}

	_, err := upsertReview(ctx, gw, rec)
	if err == nil {
		t.Fatal("a duplicate-key conflict with no row to update must surface an error")
	}
	if len(gw.reviews) != 0 {
		t.Fatalf("nothing may be stored, got %d rows", len(gw.reviews))
	}
}

func TestUpsertMetricSameDayReplacesNewDayAppends(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()
	rec := CanonicalMetric{
		BusinessId:     "biz-1",
		PlatformPostId: "vid-1",
		MetricDate:     "2026-03-15",
		Views:          100,
	}

	if _, err := upsertMetric(ctx, gw, rec); err != nil {
		t.Fatal(err)
	}
	rec.Views = 150
	outcome, err := upsertMetric(ctx, gw, rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != outcomeUpdated {
		t.Fatal("same-day re-sync must replace the snapshot")
	}
	if len(gw.metrics) != 1 || gw.metrics[0].Views != 150 {
		t.Fatalf("expected single row with views=150, got %+v", gw.metrics)
	}

	rec.MetricDate = "2026-03-16"
	rec.Views = 180
	outcome, err = upsertMetric(ctx, gw, rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != outcomeCreated {
		t.Fatal("a new calendar day must append a new row")
	}
	if len(gw.metrics) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(gw.metrics))
	}
}

func TestUpsertPostRefreshesDescriptiveFields(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()
	rec := CanonicalPost{
		BusinessId:     "biz-1",
		Platform:       "tiktok",
		PlatformPostId: "vid-1",
		Caption:        "original",
		PostedAt:       time.Unix(5000, 0).UTC(),
	}

	if _, err := upsertPost(ctx, gw, rec); err != nil {
		t.Fatal(err)
	}
	rec.Caption = "edited caption"
	rec.Permalink = "http://t/new"
	outcome, err := upsertPost(ctx, gw, rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != outcomeUpdated {
		t.Fatal("re-observation must update")
	}
	if len(gw.posts) != 1 {
		t.Fatalf("expected 1 stored post, got %d", len(gw.posts))
	}
	if gw.posts[0].Caption != "edited caption" || gw.posts[0].Permalink != "http://t/new" {
		t.Fatalf("descriptive fields must refresh: %+v", gw.posts[0])
	}
}
