package platformsync

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"go.opentelemetry.io/otel"
)

func newTestEngine(gw Gateway) *Engine {
	return &Engine{
		gw:      gw,
		reviews: NewReviewsClient(),
		video:   NewVideoClient(),
		archive: noopArchiver{},
		lease: func(ctx context.Context, businessId string, platform string, ttl time.Duration) (func(), error) {
			return func() {}, nil
		},
		now:    func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) },
		tracer: otel.Tracer("platformsync-test"),
	}
}

func googleSource(businessId string) *models.PlatformSource {
	return &models.PlatformSource{
		BusinessId: businessId,
		Platform:   models.PlatformGoogle,
		Status:     models.SourceStatusPending,
		PlaceId:    "place-1",
	}
}

const twoReviewsBody = `{
	"status": "OK",
	"result": {
		"rating": 4.3,
		"user_ratings_total": 2,
		"reviews": [
			{"author_name": "Reviewer A", "rating": 5, "text": "great", "time": 1000},
			{"author_name": "Reviewer B", "rating": 3, "text": "ok", "time": 2000}
		]
	}
}`

func TestSyncReviewsTwiceDoesNotDuplicate(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, twoReviewsBody))

	gw := newFakeGateway()
	gw.addSource(googleSource("biz-1"))
	engine := newTestEngine(gw)

	result, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewCount != 2 || result.UpdatedCount != 0 {
		t.Fatalf("first sync: expected 2 new / 0 updated, got %d/%d", result.NewCount, result.UpdatedCount)
	}
	if result.AggregateRating == nil || result.AggregateRating.String() != "4.3" {
		t.Fatalf("expected aggregate rating 4.3, got %v", result.AggregateRating)
	}

	result, err = engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewCount != 0 || result.UpdatedCount != 2 {
		t.Fatalf("second sync: expected 0 new / 2 updated, got %d/%d", result.NewCount, result.UpdatedCount)
	}
	if len(gw.reviews) != 2 {
		t.Fatalf("re-sync must not duplicate reviews, got %d rows", len(gw.reviews))
	}

	source := gw.sources["biz-1/google"]
	if source.Status != models.SourceStatusConnected {
		t.Fatalf("success must promote source to connected, got %q", source.Status)
	}
	if source.LastSyncAt == nil {
		t.Fatal("success must stamp last_sync_at")
	}

	if len(gw.runs) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(gw.runs))
	}
	for _, run := range gw.runs {
		if run.Status != models.SyncRunStatusSuccess {
			t.Fatalf("expected success run, got %q", run.Status)
		}
		if run.TotalFetched != 2 || run.AggregateRating != "4.3" {
			t.Fatalf("unexpected run counters: %+v", run)
		}
	}
}

func TestSyncReviewsNotConfiguredCreatesNoRun(t *testing.T) {
	gw := newFakeGateway()
	gw.addSource(&models.PlatformSource{
		BusinessId: "biz-1",
		Platform:   models.PlatformGoogle,
		Status:     models.SourceStatusDisconnected,
	})
	engine := newTestEngine(gw)

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	var notConfigured *NotConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected NotConfiguredError, got %v", err)
	}
	if len(gw.runs) != 0 {
		t.Fatalf("no run row may exist for an unconfigured source, got %d", len(gw.runs))
	}
}

func TestSyncReviewsPermanentDenialRegressesHealth(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, `{"status": "REQUEST_DENIED", "error_message": "key revoked"}`))

	gw := newFakeGateway()
	source := googleSource("biz-1")
	source.Status = models.SourceStatusConnected
	gw.addSource(source)
	engine := newTestEngine(gw)

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err == nil {
		t.Fatal("expected error")
	}

	run := gw.lastRun()
	if run == nil || run.Status != models.SyncRunStatusFailed {
		t.Fatalf("expected failed audit row, got %+v", run)
	}
	if !strings.HasPrefix(run.ErrorMessage, "unauthorized:") {
		t.Fatalf("failure message must carry its classification, got %q", run.ErrorMessage)
	}
	if gw.sources["biz-1/google"].Status != models.SourceStatusError {
		t.Fatalf("permanent denial must regress health, got %q", gw.sources["biz-1/google"].Status)
	}
}

func TestSyncReviewsTransientFailureKeepsHealth(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `quota`))

	gw := newFakeGateway()
	source := googleSource("biz-1")
	source.Status = models.SourceStatusConnected
	gw.addSource(source)
	engine := newTestEngine(gw)

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err == nil {
		t.Fatal("expected error")
	}
	if gw.sources["biz-1/google"].Status != models.SourceStatusConnected {
		t.Fatalf("rate limiting must not change health, got %q", gw.sources["biz-1/google"].Status)
	}
	run := gw.lastRun()
	if run.Status != models.SyncRunStatusFailed {
		t.Fatalf("expected failed audit row, got %q", run.Status)
	}
}

func TestSyncReviewsLeaseBusyCreatesNoRun(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	gw := newFakeGateway()
	gw.addSource(googleSource("biz-1"))
	engine := newTestEngine(gw)
	engine.lease = func(ctx context.Context, businessId string, platform string, ttl time.Duration) (func(), error) {
		return nil, utils.ErrLeaseBusy
	}

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if !errors.Is(err, utils.ErrLeaseBusy) {
		t.Fatalf("expected lease-busy error, got %v", err)
	}
	if len(gw.runs) != 0 {
		t.Fatalf("a rejected trigger must not leave an audit row, got %d", len(gw.runs))
	}
}

func TestSyncReviewsMissingAPIKeyLeaseBusyCreatesNoRun(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "")
	gw := newFakeGateway()
	gw.addSource(googleSource("biz-1"))
	engine := newTestEngine(gw)
	engine.lease = func(ctx context.Context, businessId string, platform string, ttl time.Duration) (func(), error) {
		return nil, utils.ErrLeaseBusy
	}

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if !errors.Is(err, utils.ErrLeaseBusy) {
		t.Fatalf("expected lease-busy error, got %v", err)
	}
	// The broken-credential audit row is created under the lease, so a
	// concurrent trigger must not add its own failed row.
	if len(gw.runs) != 0 {
		t.Fatalf("a rejected trigger must not leave an audit row, got %d", len(gw.runs))
	}
}

func TestSyncVideoMissingGrantFailsRunKeepsHealth(t *testing.T) {
	gw := newFakeGateway()
	bizId := uuid.New()
	gw.addBusiness(&models.Business{ID: bizId, AgencyId: "agency-1"})
	gw.addSource(&models.PlatformSource{
		BusinessId: bizId.String(),
		Platform:   models.PlatformTikTok,
		Status:     models.SourceStatusPending,
		Handle:     "@shopmm",
	})
	engine := newTestEngine(gw)

	_, err := engine.SyncVideo(context.Background(), bizId.String(), models.SyncTriggeredManual)
	var authErr *AuthError
	if !errors.As(err, &authErr) || !authErr.NotConnected {
		t.Fatalf("expected not-connected auth error, got %v", err)
	}

	run := gw.lastRun()
	if run == nil || run.Status != models.SyncRunStatusFailed {
		t.Fatalf("token failure must still be audited, got %+v", run)
	}
	if !strings.HasPrefix(run.ErrorMessage, "auth:") {
		t.Fatalf("failure message must name the auth failure, got %q", run.ErrorMessage)
	}
	key := bizId.String() + "/tiktok"
	if gw.sources[key].Status != models.SourceStatusPending {
		t.Fatalf("non-permanent auth failure must not change health, got %q", gw.sources[key].Status)
	}
}

func TestSyncVideoSuccessWritesPostsMetricsAndSnapshot(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://open\.tiktokapis\.com/v2/user/info/`,
		httpmock.NewStringResponder(200, `{
			"data": {"user": {"open_id": "open-1", "display_name": "Shop MM", "follower_count": 1234, "video_count": 2}},
			"error": {"code": "ok"}
		}`))
	httpmock.RegisterResponder(http.MethodPost, `=~^https://open\.tiktokapis\.com/v2/video/list/`,
		httpmock.NewStringResponder(200, `{
			"data": {"videos": [
				{"id": "vid-1", "title": "launch", "create_time": 5000, "view_count": 100, "like_count": 10},
				{"id": "vid-2", "title": "promo", "create_time": 6000, "view_count": 50}
			], "has_more": false},
			"error": {"code": "ok"}
		}`))

	gw := newFakeGateway()
	bizId := uuid.New()
	gw.addBusiness(&models.Business{ID: bizId, AgencyId: "agency-1"})
	gw.addSource(&models.PlatformSource{
		BusinessId: bizId.String(),
		Platform:   models.PlatformTikTok,
		Status:     models.SourceStatusPending,
		Handle:     "@shopmm",
	})
	expires := time.Now().Add(time.Hour)
	gw.addGrant(&models.PlatformOAuthGrant{
		AgencyId:    "agency-1",
		Platform:    models.PlatformTikTok,
		Status:      models.GrantStatusActive,
		AccessToken: "tok",
		ExpiresAt:   &expires,
	})
	engine := newTestEngine(gw)

	result, err := engine.SyncVideo(context.Background(), bizId.String(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewCount != 2 || result.RecordsWritten != 2 {
		t.Fatalf("expected 2 new posts, got %+v", result)
	}
	if len(gw.posts) != 2 || len(gw.metrics) != 2 {
		t.Fatalf("expected 2 posts and 2 metric rows, got %d/%d", len(gw.posts), len(gw.metrics))
	}
	if gw.metrics[0].MetricDate != "2026-03-15" {
		t.Fatalf("metric date must come from the injected clock, got %q", gw.metrics[0].MetricDate)
	}

	key := bizId.String() + "/tiktok"
	source := gw.sources[key]
	if source.Status != models.SourceStatusConnected {
		t.Fatalf("success must promote source, got %q", source.Status)
	}
	if source.DisplayName != "Shop MM" || source.FollowerCount != 1234 || source.ExternalAccountId != "open-1" {
		t.Fatalf("account snapshot must land on the source row: %+v", source)
	}

	// Same-day second run replaces metric snapshots instead of appending.
	if _, err := engine.SyncVideo(context.Background(), bizId.String(), models.SyncTriggeredManual); err != nil {
		t.Fatal(err)
	}
	if len(gw.metrics) != 2 {
		t.Fatalf("same-day re-sync must not append metric rows, got %d", len(gw.metrics))
	}
}

func TestSyncReviewsAllWritesFailedFailsRun(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, twoReviewsBody))

	gw := newFakeGateway()
	gw.addSource(googleSource("biz-1"))
	gw.failReviewWrites = true
	engine := newTestEngine(gw)

	_, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err == nil {
		t.Fatal("expected error when every write fails")
	}
	run := gw.lastRun()
	if run.Status != models.SyncRunStatusFailed {
		t.Fatalf("expected failed run, got %q", run.Status)
	}
	if run.ErrorCount != 2 {
		t.Fatalf("expected 2 recorded write failures, got %d", run.ErrorCount)
	}
	if len(gw.runErrors) != 2 {
		t.Fatalf("expected 2 per-record error rows, got %d", len(gw.runErrors))
	}
	for _, recErr := range gw.runErrors {
		if !recErr.Retryable {
			t.Fatalf("write failures must be retryable, got %+v", recErr)
		}
	}
}

func TestSyncReviewsPartialWriteFailureStillSucceeds(t *testing.T) {
	t.Setenv("GOOGLE_PLACES_API_KEY", "test-key")
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, twoReviewsBody))

	failedKey := ReviewNaturalKey("Reviewer A", 1000)
	gw := newFakeGateway()
	gw.addSource(googleSource("biz-1"))
	gw.failReviewWriteKeys = map[string]bool{failedKey: true}
	engine := newTestEngine(gw)

	result, err := engine.SyncReviews(context.Background(), "biz-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatal("a run with surviving writes must report success")
	}
	if result.NewCount != 1 || result.RecordsWritten != 1 {
		t.Fatalf("expected 1 written review, got %+v", result)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skipped record, got %+v", result.Skipped)
	}
	if result.Skipped[0].NaturalKey != failedKey || !result.Skipped[0].Retryable {
		t.Fatalf("failed write must surface as a retryable skipped record, got %+v", result.Skipped[0])
	}

	run := gw.lastRun()
	if run.Status != models.SyncRunStatusSuccess {
		t.Fatalf("expected success run, got %q", run.Status)
	}
	if run.NewCount != 1 || run.ErrorCount != 1 {
		t.Fatalf("unexpected run counters: %+v", run)
	}
	if len(gw.runErrors) != 1 || !gw.runErrors[0].Retryable || gw.runErrors[0].NaturalKey != failedKey {
		t.Fatalf("expected 1 retryable per-record error row, got %+v", gw.runErrors)
	}
	if len(gw.reviews) != 1 {
		t.Fatalf("expected the surviving review to be stored, got %d", len(gw.reviews))
	}
}

func TestFinalizeSyncRunOnlyOnce(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()
	run, err := startRun(ctx, gw, "biz-1", models.PlatformGoogle, models.SyncTriggeredManual, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	applied, err := gw.FinalizeSyncRun(ctx, run.ID, map[string]interface{}{"status": models.SyncRunStatusSuccess})
	if err != nil || !applied {
		t.Fatalf("first finalization must apply, got applied=%v err=%v", applied, err)
	}
	applied, err = gw.FinalizeSyncRun(ctx, run.ID, map[string]interface{}{"status": models.SyncRunStatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second finalization must be a no-op")
	}
	if gw.runs[0].Status != models.SyncRunStatusSuccess {
		t.Fatalf("terminal status must not flip, got %q", gw.runs[0].Status)
	}
}
