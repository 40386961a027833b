package platformsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
)

// updateHealthOnSuccess marks the source connected and stamps last_sync_at.
// For the video platform the fetched account snapshot is folded onto the
// source row so the dashboard reads profile counters without an extra call.
func updateHealthOnSuccess(ctx context.Context, gw Gateway, businessId string, platform string, snapshot *AccountSnapshot, now time.Time) error {
	updates := map[string]interface{}{
		"status":       models.SourceStatusConnected,
		"last_sync_at": now,
	}
	if snapshot != nil {
		updates["external_account_id"] = snapshot.ExternalAccountId
		updates["display_name"] = snapshot.DisplayName
		updates["avatar_url"] = snapshot.AvatarUrl
		updates["bio"] = snapshot.Bio
		updates["follower_count"] = snapshot.FollowerCount
		updates["following_count"] = snapshot.FollowingCount
		updates["like_count"] = snapshot.LikeCount
		updates["video_count"] = snapshot.VideoCount
		updates["is_verified"] = snapshot.IsVerified
	}
	return gw.UpdateSource(ctx, businessId, platform, updates)
}

// updateHealthOnFailure regresses the source to `error` only on permanent
// authorization failures. Transient errors, rate limits and timeouts leave
// the stored status untouched so a single bad poll cannot flap a healthy
// connection. STRICT_HEALTH_TRANSITIONS=false widens the regression to any
// auth failure, for operators who prefer loud over stable.
func updateHealthOnFailure(ctx context.Context, gw Gateway, businessId string, platform string, cause error) {
	regress := IsPermanentAuthFailure(cause)
	if !config.StrictHealthTransitions() {
		var authErr *AuthError
		if errors.As(cause, &authErr) && !authErr.NotConnected {
			regress = true
		}
	}
	if !regress {
		return
	}
	err := gw.UpdateSource(ctx, businessId, platform, map[string]interface{}{
		"status": models.SourceStatusError,
	})
	if err != nil {
		config.LogError(config.GetLogger(), "platformsync", "updateHealthOnFailure", "Unable to update source status", businessId, err)
	}
}
