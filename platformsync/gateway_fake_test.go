package platformsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
)

// fakeGateway is an in-memory Gateway used by the engine tests. It applies
// the same column-keyed update maps the gorm implementation receives, so the
// tests exercise the real merge semantics.
type fakeGateway struct {
	mu sync.Mutex

	businesses map[string]*models.Business
	sources    map[string]*models.PlatformSource
	grants     map[string]*models.PlatformOAuthGrant
	reviews    []*models.Review
	posts      []*models.SocialPost
	metrics    []*models.PostMetric
	runs       []*models.SyncRun
	runErrors  []*models.SyncRunError

	nextId uint

	failReviewWrites    bool
	failPostWrites      bool
	failReviewWriteKeys map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		businesses: map[string]*models.Business{},
		sources:    map[string]*models.PlatformSource{},
		grants:     map[string]*models.PlatformOAuthGrant{},
		nextId:     1,
	}
}

func (f *fakeGateway) id() uint {
	id := f.nextId
	f.nextId++
	return id
}

func sourceKey(businessId, platform string) string { return businessId + "/" + platform }

func (f *fakeGateway) addSource(source *models.PlatformSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source.ID = f.id()
	f.sources[sourceKey(source.BusinessId, source.Platform)] = source
}

func (f *fakeGateway) addBusiness(business *models.Business) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.businesses[business.ID.String()] = business
}

func (f *fakeGateway) addGrant(grant *models.PlatformOAuthGrant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grant.ID = f.id()
	f.grants[sourceKey(grant.AgencyId, grant.Platform)] = grant
}

func (f *fakeGateway) GetBusiness(ctx context.Context, businessId string) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.businesses[businessId], nil
}

func (f *fakeGateway) GetSource(ctx context.Context, businessId string, platform string) (*models.PlatformSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[sourceKey(businessId, platform)], nil
}

func (f *fakeGateway) UpdateSource(ctx context.Context, businessId string, platform string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[sourceKey(businessId, platform)]
	if !ok {
		return fmt.Errorf("source not found: %s/%s", businessId, platform)
	}
	for col, val := range updates {
		switch col {
		case "status":
			source.Status = val.(string)
		case "place_id":
			source.PlaceId = val.(string)
		case "handle":
			source.Handle = val.(string)
		case "external_account_id":
			source.ExternalAccountId = val.(string)
		case "display_name":
			source.DisplayName = val.(string)
		case "avatar_url":
			source.AvatarUrl = val.(string)
		case "bio":
			source.Bio = val.(string)
		case "follower_count":
			source.FollowerCount = val.(int64)
		case "following_count":
			source.FollowingCount = val.(int64)
		case "like_count":
			source.LikeCount = val.(int64)
		case "video_count":
			source.VideoCount = val.(int64)
		case "is_verified":
			source.IsVerified = val.(bool)
		case "last_sync_at":
			if val == nil {
				source.LastSyncAt = nil
			} else {
				ts := val.(time.Time)
				source.LastSyncAt = &ts
			}
		}
	}
	return nil
}

func (f *fakeGateway) ListConnectedSources(ctx context.Context, platform string) ([]models.PlatformSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PlatformSource
	for _, source := range f.sources {
		if source.Status != models.SourceStatusConnected {
			continue
		}
		if platform != "" && source.Platform != platform {
			continue
		}
		out = append(out, *source)
	}
	return out, nil
}

func (f *fakeGateway) GetOAuthGrant(ctx context.Context, agencyId string, platform string) (*models.PlatformOAuthGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[sourceKey(agencyId, platform)], nil
}

func (f *fakeGateway) UpdateOAuthGrant(ctx context.Context, grantId uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, grant := range f.grants {
		if grant.ID != grantId {
			continue
		}
		for col, val := range updates {
			switch col {
			case "status":
				grant.Status = val.(string)
			case "access_token":
				grant.AccessToken = val.(string)
			case "refresh_token":
				grant.RefreshToken = val.(string)
			case "expires_at":
				ts := val.(time.Time)
				grant.ExpiresAt = &ts
			}
		}
		return nil
	}
	return fmt.Errorf("grant %d not found", grantId)
}

func (f *fakeGateway) FindReview(ctx context.Context, businessId string, platform string, reviewId string) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, review := range f.reviews {
		if review.BusinessId == businessId && review.Platform == platform && review.ReviewId == reviewId {
			return review, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) CreateReview(ctx context.Context, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReviewWrites || f.failReviewWriteKeys[review.ReviewId] {
		return fmt.Errorf("simulated review write failure")
	}
	review.ID = f.id()
	f.reviews = append(f.reviews, review)
	return nil
}

func (f *fakeGateway) UpdateReview(ctx context.Context, reviewId uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReviewWrites {
		return fmt.Errorf("simulated review write failure")
	}
	for _, review := range f.reviews {
		if review.ID != reviewId {
			continue
		}
		if f.failReviewWriteKeys[review.ReviewId] {
			return fmt.Errorf("simulated review write failure")
		}
		for col, val := range updates {
			switch col {
			case "rating":
				review.Rating = val.(int)
			case "text":
				review.Text = val.(string)
			case "reviewer_name":
				review.ReviewerName = val.(string)
			case "reviewer_avatar_url":
				review.ReviewerAvatarUrl = val.(string)
			case "posted_at":
				review.PostedAt = val.(time.Time)
			case "response_draft":
				review.ResponseDraft = val.(string)
			}
		}
		return nil
	}
	return fmt.Errorf("review %d not found", reviewId)
}

func (f *fakeGateway) FindPost(ctx context.Context, businessId string, platformPostId string) (*models.SocialPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, post := range f.posts {
		if post.BusinessId == businessId && post.PlatformPostId == platformPostId {
			return post, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) CreatePost(ctx context.Context, post *models.SocialPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPostWrites {
		return fmt.Errorf("simulated post write failure")
	}
	post.ID = f.id()
	f.posts = append(f.posts, post)
	return nil
}

func (f *fakeGateway) UpdatePost(ctx context.Context, postId uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPostWrites {
		return fmt.Errorf("simulated post write failure")
	}
	for _, post := range f.posts {
		if post.ID != postId {
			continue
		}
		for col, val := range updates {
			switch col {
			case "caption":
				post.Caption = val.(string)
			case "media_url":
				post.MediaUrl = val.(string)
			case "permalink":
				post.Permalink = val.(string)
			case "posted_at":
				post.PostedAt = val.(time.Time)
			}
		}
		return nil
	}
	return fmt.Errorf("post %d not found", postId)
}

func (f *fakeGateway) FindMetric(ctx context.Context, businessId string, platformPostId string, metricDate string) (*models.PostMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, metric := range f.metrics {
		if metric.BusinessId == businessId && metric.PlatformPostId == platformPostId && metric.MetricDate == metricDate {
			return metric, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) CreateMetric(ctx context.Context, metric *models.PostMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	metric.ID = f.id()
	f.metrics = append(f.metrics, metric)
	return nil
}

func (f *fakeGateway) UpdateMetric(ctx context.Context, metricId uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, metric := range f.metrics {
		if metric.ID != metricId {
			continue
		}
		for col, val := range updates {
			switch col {
			case "views":
				metric.Views = val.(int64)
			case "likes":
				metric.Likes = val.(int64)
			case "comments":
				metric.Comments = val.(int64)
			case "shares":
				metric.Shares = val.(int64)
			}
		}
		return nil
	}
	return fmt.Errorf("metric %d not found", metricId)
}

func (f *fakeGateway) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = f.id()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeGateway) FinalizeSyncRun(ctx context.Context, runId uint, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.ID != runId || run.Status != models.SyncRunStatusRunning {
			continue
		}
		for col, val := range updates {
			switch col {
			case "status":
				run.Status = val.(string)
			case "total_fetched":
				run.TotalFetched = val.(int)
			case "new_count":
				run.NewCount = val.(int)
			case "updated_count":
				run.UpdatedCount = val.(int)
			case "records_written":
				run.RecordsWritten = val.(int)
			case "error_count":
				run.ErrorCount = val.(int)
			case "aggregate_rating":
				run.AggregateRating = val.(string)
			case "error_message":
				run.ErrorMessage = val.(string)
			case "finished_at":
				ts := val.(time.Time)
				run.FinishedAt = &ts
			case "duration_ms":
				run.DurationMs = val.(int64)
			}
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeGateway) CreateSyncRunError(ctx context.Context, runError *models.SyncRunError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	runError.ID = f.id()
	f.runErrors = append(f.runErrors, runError)
	return nil
}

func (f *fakeGateway) lastRun() *models.SyncRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil
	}
	return f.runs[len(f.runs)-1]
}
