package platformsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		var sources []models.PlatformSource
		if err := db.Where("business_id = ?", businessId).Order("platform").Find(&sources).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SourceStatusResponse, 0, len(sources))
		for _, source := range sources {
			items = append(items, SourceStatusResponse{
				Platform:      source.Platform,
				Status:        source.Status,
				PlaceId:       source.PlaceId,
				Handle:        source.Handle,
				DisplayName:   source.DisplayName,
				FollowerCount: source.FollowerCount,
				LastSyncAt:    formatTime(source.LastSyncAt),
			})
		}
		c.JSON(http.StatusOK, StatusResponse{Sources: items})
	}
}

// ConnectHandler stores the platform locator (place id for reviews, account
// handle for video) and moves the source to `pending`. The first successful
// sync promotes it to `connected`.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		platform := c.Param("platform")
		if !models.IsSupportedPlatform(platform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported platform"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		updates := map[string]interface{}{
			"status": models.SourceStatusPending,
		}
		switch platform {
		case models.PlatformGoogle:
			if strings.TrimSpace(req.PlaceId) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "placeId is required"})
				return
			}
			updates["place_id"] = strings.TrimSpace(req.PlaceId)
		case models.PlatformTikTok:
			if strings.TrimSpace(req.Handle) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
				return
			}
			updates["handle"] = strings.TrimSpace(req.Handle)
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if err := updateSource(ctx, businessId, platform, updates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DisconnectHandler clears the locator and puts the source back to
// `disconnected`. Already synced records stay; only future syncs stop.
func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		platform := c.Param("platform")
		if !models.IsSupportedPlatform(platform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported platform"})
			return
		}

		updates := map[string]interface{}{
			"status":       models.SourceStatusDisconnected,
			"place_id":     "",
			"handle":       "",
			"last_sync_at": nil,
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if err := updateSource(ctx, businessId, platform, updates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// TriggerSyncHandler runs one synchronous sync attempt and returns its
// counters. Concurrency per (business, platform) is rejected, not queued.
func TriggerSyncHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		platform := c.Param("platform")
		if !models.IsSupportedPlatform(platform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported platform"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		result, err := engine.Sync(ctx, platform, businessId, models.SyncTriggeredManual, nil)
		if err != nil {
			writeSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("business_id = ?", businessId)
		if platform := strings.TrimSpace(c.Query("platform")); platform != "" {
			query = query.Where("platform = ?", platform)
		}

		var runs []models.SyncRun
		if err := query.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		var run models.SyncRun
		if err := db.Where("id = ? AND business_id = ?", id, businessId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.SyncRunError
		if err := db.Where("sync_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		}
		c.JSON(http.StatusOK, resp)
	}
}

// RetrySyncRunHandler re-attempts a finished run synchronously, linking the
// new run to the old through parent_run_id.
func RetrySyncRunHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		db := config.GetDB().WithContext(ctx)

		var run models.SyncRun
		if err := db.Where("id = ? AND business_id = ?", id, businessId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run.Status == models.SyncRunStatusRunning {
			c.JSON(http.StatusConflict, gin.H{"error": "run is still in progress"})
			return
		}

		parentId := run.ID
		result, err := engine.Sync(ctx, run.Platform, businessId, models.SyncTriggeredRetry, &parentId)
		if err != nil {
			writeSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func CreateBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		agencyId, ok := utils.GetAgencyIdFromContext(c.Request.Context())
		if !ok || strings.TrimSpace(agencyId) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.AgencyId = agencyId
		if err := utils.ValidateStruct(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

// writeSyncError maps the engine's error taxonomy onto HTTP statuses.
func writeSyncError(c *gin.Context, err error) {
	var notConfigured *NotConfiguredError
	if errors.As(err, &notConfigured) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.NotConnected {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, utils.ErrLeaseBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	// Upstream and internal failures both surface as 500; the body carries
	// the classification so callers can decide whether to retry later.
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func resolveBusinessID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	businessId := strings.TrimSpace(c.Query("business_id"))
	if businessId != "" {
		if err := authorizeBusinessAccess(c.Request.Context(), businessId); err != nil {
			return "", err
		}
		return businessId, nil
	}

	user, err := lookupUser(c.Request.Context(), username)
	if err != nil {
		return "", err
	}
	businessId = strings.TrimSpace(user.BusinessId)
	if businessId == "" {
		return "", errors.New("business_id is required")
	}
	return businessId, nil
}

func authorizeBusinessAccess(ctx context.Context, businessId string) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}
	if businessId == "" {
		return errors.New("business_id is required")
	}

	user, err := lookupUser(ctx, username)
	if err != nil {
		return err
	}
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.BusinessId == businessId {
		return nil
	}

	// Agency staff reach every business of their agency.
	if user.AgencyId != "" {
		business, err := models.GetBusinessById(ctx, businessId)
		if err == nil && business != nil && business.AgencyId == user.AgencyId {
			return nil
		}
	}
	return errors.New("unauthorized")
}

func lookupUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, errors.New("unauthorized")
	}
	_ = config.SetRedisObject("User:"+username, user, 10*time.Minute)
	return &user, nil
}

func updateSource(ctx context.Context, businessId string, platform string, updates map[string]interface{}) error {
	res := config.GetDB().WithContext(ctx).
		Model(&models.PlatformSource{}).
		Where("business_id = ? AND platform = ?", businessId, platform).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("platform source not found")
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:              run.ID,
		Platform:        run.Platform,
		Status:          run.Status,
		TriggeredBy:     run.TriggeredBy,
		StartedAt:       formatTime(run.StartedAt),
		FinishedAt:      formatTime(run.FinishedAt),
		DurationMs:      run.DurationMs,
		TotalFetched:    run.TotalFetched,
		NewCount:        run.NewCount,
		UpdatedCount:    run.UpdatedCount,
		RecordsWritten:  run.RecordsWritten,
		ErrorCount:      run.ErrorCount,
		AggregateRating: run.AggregateRating,
		ErrorMessage:    run.ErrorMessage,
	}
}

func mapErrors(errorsList []models.SyncRunError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			NaturalKey: errItem.NaturalKey,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
