package platformsync

import (
	"context"
	"errors"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Gateway is the engine's storage boundary. The gorm implementation comes in
// two privilege levels: tenant-scoped (the tenant-guard plugin pins every
// statement to the context business id) and service-scoped (explicit bypass,
// for system-triggered runs and the dispatcher). Which one a caller gets is
// decided by its authorization context, never by an ambient global.
type Gateway interface {
	GetBusiness(ctx context.Context, businessId string) (*models.Business, error)
	GetSource(ctx context.Context, businessId string, platform string) (*models.PlatformSource, error)
	UpdateSource(ctx context.Context, businessId string, platform string, updates map[string]interface{}) error
	ListConnectedSources(ctx context.Context, platform string) ([]models.PlatformSource, error)

	GetOAuthGrant(ctx context.Context, agencyId string, platform string) (*models.PlatformOAuthGrant, error)
	UpdateOAuthGrant(ctx context.Context, grantId uint, updates map[string]interface{}) error

	FindReview(ctx context.Context, businessId string, platform string, reviewId string) (*models.Review, error)
	CreateReview(ctx context.Context, review *models.Review) error
	UpdateReview(ctx context.Context, reviewId uint, updates map[string]interface{}) error

	FindPost(ctx context.Context, businessId string, platformPostId string) (*models.SocialPost, error)
	CreatePost(ctx context.Context, post *models.SocialPost) error
	UpdatePost(ctx context.Context, postId uint, updates map[string]interface{}) error

	FindMetric(ctx context.Context, businessId string, platformPostId string, metricDate string) (*models.PostMetric, error)
	CreateMetric(ctx context.Context, metric *models.PostMetric) error
	UpdateMetric(ctx context.Context, metricId uint, updates map[string]interface{}) error

	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	// FinalizeSyncRun applies updates only while the run is still `running`;
	// it reports whether this call performed the (single) finalization.
	FinalizeSyncRun(ctx context.Context, runId uint, updates map[string]interface{}) (bool, error)
	CreateSyncRunError(ctx context.Context, runError *models.SyncRunError) error
}

type gormGateway struct {
	elevated bool
}

// NewGateway returns the tenant-scoped storage gateway.
func NewGateway() Gateway { return &gormGateway{} }

// NewServiceGateway returns the elevated gateway for internal flows that run
// without a user request context (Pub/Sub worker, dispatcher).
func NewServiceGateway() Gateway { return &gormGateway{elevated: true} }

func (g *gormGateway) db(ctx context.Context) *gorm.DB {
	if g.elevated {
		ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	}
	return config.GetDB().WithContext(ctx)
}

func (g *gormGateway) GetBusiness(ctx context.Context, businessId string) (*models.Business, error) {
	var business models.Business
	err := g.db(ctx).Where("id = ?", businessId).Take(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &business, nil
}

func (g *gormGateway) GetSource(ctx context.Context, businessId string, platform string) (*models.PlatformSource, error) {
	var source models.PlatformSource
	err := g.db(ctx).
		Where("business_id = ? AND platform = ?", businessId, platform).
		Take(&source).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &source, nil
}

func (g *gormGateway) UpdateSource(ctx context.Context, businessId string, platform string, updates map[string]interface{}) error {
	return g.db(ctx).
		Model(&models.PlatformSource{}).
		Where("business_id = ? AND platform = ?", businessId, platform).
		Updates(updates).Error
}

func (g *gormGateway) ListConnectedSources(ctx context.Context, platform string) ([]models.PlatformSource, error) {
	var sources []models.PlatformSource
	query := g.db(ctx).Where("status = ?", models.SourceStatusConnected)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if err := query.Order("id").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (g *gormGateway) GetOAuthGrant(ctx context.Context, agencyId string, platform string) (*models.PlatformOAuthGrant, error) {
	var grant models.PlatformOAuthGrant
	err := g.db(ctx).
		Where("agency_id = ? AND platform = ?", agencyId, platform).
		Take(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (g *gormGateway) UpdateOAuthGrant(ctx context.Context, grantId uint, updates map[string]interface{}) error {
	return g.db(ctx).
		Model(&models.PlatformOAuthGrant{}).
		Where("id = ?", grantId).
		Updates(updates).Error
}

func (g *gormGateway) FindReview(ctx context.Context, businessId string, platform string, reviewId string) (*models.Review, error) {
	var review models.Review
	err := g.db(ctx).
		Where("business_id = ? AND platform = ? AND review_id = ?", businessId, platform, reviewId).
		Take(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

func (g *gormGateway) CreateReview(ctx context.Context, review *models.Review) error {
	return g.db(ctx).Create(review).Error
}

func (g *gormGateway) UpdateReview(ctx context.Context, reviewId uint, updates map[string]interface{}) error {
	return g.db(ctx).
		Model(&models.Review{}).
		Where("id = ?", reviewId).
		Updates(updates).Error
}

func (g *gormGateway) FindPost(ctx context.Context, businessId string, platformPostId string) (*models.SocialPost, error) {
	var post models.SocialPost
	err := g.db(ctx).
		Where("business_id = ? AND platform_post_id = ?", businessId, platformPostId).
		Take(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

func (g *gormGateway) CreatePost(ctx context.Context, post *models.SocialPost) error {
	return g.db(ctx).Create(post).Error
}

func (g *gormGateway) UpdatePost(ctx context.Context, postId uint, updates map[string]interface{}) error {
	return g.db(ctx).
		Model(&models.SocialPost{}).
		Where("id = ?", postId).
		Updates(updates).Error
}

func (g *gormGateway) FindMetric(ctx context.Context, businessId string, platformPostId string, metricDate string) (*models.PostMetric, error) {
	var metric models.PostMetric
	err := g.db(ctx).
		Where("business_id = ? AND platform_post_id = ? AND metric_date = ?", businessId, platformPostId, metricDate).
		Take(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metric, nil
}

func (g *gormGateway) CreateMetric(ctx context.Context, metric *models.PostMetric) error {
	return g.db(ctx).Create(metric).Error
}

func (g *gormGateway) UpdateMetric(ctx context.Context, metricId uint, updates map[string]interface{}) error {
	return g.db(ctx).
		Model(&models.PostMetric{}).
		Where("id = ?", metricId).
		Updates(updates).Error
}

func (g *gormGateway) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	return g.db(ctx).Create(run).Error
}

func (g *gormGateway) FinalizeSyncRun(ctx context.Context, runId uint, updates map[string]interface{}) (bool, error) {
	res := g.db(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", runId, models.SyncRunStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *gormGateway) CreateSyncRunError(ctx context.Context, runError *models.SyncRunError) error {
	return g.db(ctx).Create(runError).Error
}

// isDuplicateKey reports a MySQL unique-key violation (error 1062). Two
// concurrent first observations of the same natural key race on create; the
// loser retries as an update.
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
