package platformsync

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
	"github.com/shopspring/decimal"
)

// ReviewNaturalKey is the single system-wide derivation rule for review
// identity. The reviews platform exposes no stable review id, so the key is a
// digest of reviewer identity and the platform-reported timestamp. Every
// ingestion path must go through this function; two rules for the same
// platform means the same external review stored twice.
func ReviewNaturalKey(reviewerName string, epochSeconds int64) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%d", strings.TrimSpace(reviewerName), epochSeconds)))
	return hex.EncodeToString(h[:])
}

// NormalizeGoogleReviews maps the place-details payload into canonical
// reviews. A review missing its natural-key inputs (no reviewer name and no
// timestamp) or its rating is rejected and reported, never silently dropped.
// Optional fields default to empty/zero.
func NormalizeGoogleReviews(businessId string, payload *googlePlaceDetails) ([]CanonicalReview, []SkippedRecord) {
	if payload == nil {
		return nil, nil
	}
	reviews := make([]CanonicalReview, 0, len(payload.Result.Reviews))
	var skipped []SkippedRecord
	for _, raw := range payload.Result.Reviews {
		if strings.TrimSpace(raw.AuthorName) == "" && raw.Time == 0 {
			skipped = append(skipped, SkippedRecord{
				EntityType: "review",
				Message:    "missing reviewer name and platform timestamp",
				Retryable:  false,
			})
			continue
		}
		if raw.Rating < 1 {
			// A zero rating means the platform omitted it; storing it
			// would fabricate a one-star review.
			skipped = append(skipped, SkippedRecord{
				EntityType: "review",
				NaturalKey: ReviewNaturalKey(raw.AuthorName, raw.Time),
				Message:    "missing or invalid rating",
				Retryable:  false,
			})
			continue
		}
		reviews = append(reviews, CanonicalReview{
			BusinessId:        businessId,
			Platform:          models.PlatformGoogle,
			ReviewId:          ReviewNaturalKey(raw.AuthorName, raw.Time),
			Rating:            capRating(raw.Rating),
			Text:              raw.Text,
			ReviewerName:      strings.TrimSpace(raw.AuthorName),
			ReviewerAvatarUrl: raw.ProfilePhotoUrl,
			PostedAt:          time.Unix(raw.Time, 0).UTC(),
		})
	}
	return reviews, skipped
}

// AggregateRating extracts the platform-reported aggregate rating; nil when
// the platform omitted it.
func AggregateRating(payload *googlePlaceDetails) *decimal.Decimal {
	if payload == nil || payload.Result.Rating.String() == "" {
		return nil
	}
	d, err := decimal.NewFromString(payload.Result.Rating.String())
	if err != nil {
		return nil
	}
	return &d
}

// NormalizeAccountSnapshot maps the user-info payload. All numeric fields
// default to 0 when absent, never null.
func NormalizeAccountSnapshot(payload *tiktokUserInfoResponse) AccountSnapshot {
	if payload == nil {
		return AccountSnapshot{}
	}
	user := payload.Data.User
	return AccountSnapshot{
		ExternalAccountId: user.OpenId,
		DisplayName:       user.DisplayName,
		AvatarUrl:         user.AvatarUrl,
		Bio:               user.BioDescription,
		FollowerCount:     user.FollowerCount,
		FollowingCount:    user.FollowingCount,
		LikeCount:         user.LikesCount,
		VideoCount:        user.VideoCount,
		IsVerified:        user.IsVerified,
	}
}

// NormalizeVideos maps the video-list payload into canonical posts plus one
// metric snapshot per post for the given calendar day. A video with no
// platform id is rejected as a normalization failure.
func NormalizeVideos(businessId string, payload *tiktokVideoListResponse, now time.Time) ([]CanonicalPost, []CanonicalMetric, []SkippedRecord) {
	if payload == nil {
		return nil, nil, nil
	}
	metricDate := now.UTC().Format("2006-01-02")

	posts := make([]CanonicalPost, 0, len(payload.Data.Videos))
	metrics := make([]CanonicalMetric, 0, len(payload.Data.Videos))
	var skipped []SkippedRecord
	for _, video := range payload.Data.Videos {
		postId := strings.TrimSpace(video.Id)
		if postId == "" {
			skipped = append(skipped, SkippedRecord{
				EntityType: "post",
				Message:    "missing platform post id",
				Retryable:  false,
			})
			continue
		}
		caption := video.Title
		if caption == "" {
			caption = video.VideoDesc
		}
		permalink := video.ShareUrl
		if permalink == "" {
			permalink = video.EmbedLink
		}
		posts = append(posts, CanonicalPost{
			BusinessId:     businessId,
			Platform:       models.PlatformTikTok,
			PlatformPostId: postId,
			Caption:        caption,
			MediaUrl:       video.CoverImageUrl,
			Permalink:      permalink,
			PostedAt:       time.Unix(video.CreateTime, 0).UTC(),
		})
		metrics = append(metrics, CanonicalMetric{
			BusinessId:     businessId,
			PlatformPostId: postId,
			MetricDate:     metricDate,
			Views:          video.ViewCount,
			Likes:          video.LikeCount,
			Comments:       video.CommentCount,
			Shares:         video.ShareCount,
		})
	}
	return posts, metrics, skipped
}

func capRating(r int) int {
	if r > 5 {
		return 5
	}
	return r
}
