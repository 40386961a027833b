package platformsync

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
)

type ReviewsCredential struct {
	PlaceId string
	APIKey  string
}

type VideoCredential struct {
	AccessToken string
	OpenId      string
}

// ResolveReviewsCredential returns the static per-business configuration for
// the reviews platform: the source's place id plus the globally configured
// API key. Pure read, no side effects.
func ResolveReviewsCredential(source *models.PlatformSource) (ReviewsCredential, error) {
	if source == nil || strings.TrimSpace(source.PlaceId) == "" {
		return ReviewsCredential{}, &NotConfiguredError{
			Platform: models.PlatformGoogle,
			Reason:   "no place id configured for this business",
		}
	}
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_PLACES_API_KEY"))
	if apiKey == "" {
		return ReviewsCredential{}, &AuthError{
			Platform:  models.PlatformGoogle,
			Reason:    "GOOGLE_PLACES_API_KEY is not configured",
			Permanent: true,
		}
	}
	return ReviewsCredential{PlaceId: source.PlaceId, APIKey: apiKey}, nil
}

// ResolveVideoCredential returns a bearer token from the agency's stored
// OAuth grant, refreshing an expired token when a refresh token exists.
// "never connected" (no grant) is distinguished from "previously connected,
// now broken" (revoked grant, rejected refresh): only the latter is a
// permanent failure.
func ResolveVideoCredential(ctx context.Context, gw Gateway, client *VideoClient, agencyId string) (VideoCredential, error) {
	grant, err := gw.GetOAuthGrant(ctx, agencyId, models.PlatformTikTok)
	if err != nil {
		return VideoCredential{}, err
	}
	if grant == nil {
		return VideoCredential{}, &AuthError{
			Platform:     models.PlatformTikTok,
			Reason:       "no account linked for this agency",
			NotConnected: true,
		}
	}
	if grant.Status == models.GrantStatusRevoked {
		return VideoCredential{}, &AuthError{
			Platform:  models.PlatformTikTok,
			Reason:    "stored grant was revoked",
			Permanent: true,
		}
	}

	expired := grant.ExpiresAt != nil && !grant.ExpiresAt.After(time.Now())
	if !expired && grant.AccessToken != "" {
		return VideoCredential{AccessToken: grant.AccessToken, OpenId: grant.OpenId}, nil
	}

	if strings.TrimSpace(grant.RefreshToken) == "" {
		return VideoCredential{}, &AuthError{
			Platform:  models.PlatformTikTok,
			Reason:    "access token expired and no refresh token stored",
			Permanent: true,
		}
	}

	refreshed, err := client.RefreshAccessToken(ctx, grant.RefreshToken)
	if err != nil {
		if IsPermanentAuthFailure(err) {
			// Mark the grant so the connect UI can prompt a re-link.
			_ = gw.UpdateOAuthGrant(ctx, grant.ID, map[string]interface{}{
				"status": models.GrantStatusExpired,
			})
			return VideoCredential{}, err
		}
		// Network/transient exchange failure: not a broken grant.
		return VideoCredential{}, &AuthError{
			Platform: models.PlatformTikTok,
			Reason:   "token refresh failed: " + err.Error(),
			Err:      err,
		}
	}

	expiresAt := time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	updates := map[string]interface{}{
		"access_token": refreshed.AccessToken,
		"expires_at":   expiresAt,
		"status":       models.GrantStatusActive,
	}
	if refreshed.RefreshToken != "" {
		updates["refresh_token"] = refreshed.RefreshToken
	}
	if err := gw.UpdateOAuthGrant(ctx, grant.ID, updates); err != nil {
		return VideoCredential{}, err
	}

	openId := refreshed.OpenId
	if openId == "" {
		openId = grant.OpenId
	}
	return VideoCredential{AccessToken: refreshed.AccessToken, OpenId: openId}, nil
}
