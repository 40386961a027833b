package platformsync

import (
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
	"github.com/shopspring/decimal"
)

// Canonical record shapes produced by the normalizer, independent of any
// platform wire format.

type CanonicalReview struct {
	BusinessId        string
	Platform          string
	ReviewId          string
	Rating            int
	Text              string
	ReviewerName      string
	ReviewerAvatarUrl string
	PostedAt          time.Time
}

type AccountSnapshot struct {
	ExternalAccountId string
	Handle            string
	DisplayName       string
	AvatarUrl         string
	Bio               string
	FollowerCount     int64
	FollowingCount    int64
	LikeCount         int64
	VideoCount        int64
	IsVerified        bool
}

type CanonicalPost struct {
	BusinessId     string
	Platform       string
	PlatformPostId string
	Caption        string
	MediaUrl       string
	Permalink      string
	PostedAt       time.Time
}

type CanonicalMetric struct {
	BusinessId     string
	PlatformPostId string
	MetricDate     string
	Views          int64
	Likes          int64
	Comments       int64
	Shares         int64
}

func (r CanonicalReview) toModel() *models.Review {
	return &models.Review{
		BusinessId:        r.BusinessId,
		Platform:          r.Platform,
		ReviewId:          r.ReviewId,
		Rating:            r.Rating,
		Text:              r.Text,
		ReviewerName:      r.ReviewerName,
		ReviewerAvatarUrl: r.ReviewerAvatarUrl,
		PostedAt:          r.PostedAt,
	}
}

func (p CanonicalPost) toModel() *models.SocialPost {
	return &models.SocialPost{
		BusinessId:     p.BusinessId,
		Platform:       p.Platform,
		PlatformPostId: p.PlatformPostId,
		Caption:        p.Caption,
		MediaUrl:       p.MediaUrl,
		Permalink:      p.Permalink,
		PostedAt:       p.PostedAt,
	}
}

func (m CanonicalMetric) toModel() *models.PostMetric {
	return &models.PostMetric{
		BusinessId:     m.BusinessId,
		PlatformPostId: m.PlatformPostId,
		MetricDate:     m.MetricDate,
		Views:          m.Views,
		Likes:          m.Likes,
		Comments:       m.Comments,
		Shares:         m.Shares,
	}
}

// SkippedRecord reports one record-level failure inside an otherwise
// successful run.
type SkippedRecord struct {
	EntityType string `json:"entity_type"`
	NaturalKey string `json:"natural_key"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// SyncResult is the synchronous trigger response payload.
type SyncResult struct {
	Success         bool             `json:"success"`
	RunId           uint             `json:"run_id"`
	NewCount        int              `json:"new_count"`
	UpdatedCount    int              `json:"updated_count"`
	TotalFetched    int              `json:"total_fetched"`
	RecordsWritten  int              `json:"records_written"`
	AggregateRating *decimal.Decimal `json:"platform_aggregate_rating,omitempty"`
	Skipped         []SkippedRecord  `json:"skipped,omitempty"`
}

// HTTP DTOs.

type ConnectRequest struct {
	PlaceId string `json:"placeId"`
	Handle  string `json:"handle"`
}

type SourceStatusResponse struct {
	Platform      string  `json:"platform"`
	Status        string  `json:"status"`
	PlaceId       string  `json:"placeId,omitempty"`
	Handle        string  `json:"handle,omitempty"`
	DisplayName   string  `json:"displayName,omitempty"`
	FollowerCount int64   `json:"followerCount,omitempty"`
	LastSyncAt    *string `json:"lastSyncAt"`
}

type StatusResponse struct {
	Sources []SourceStatusResponse `json:"sources"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID              uint    `json:"id"`
	Platform        string  `json:"platform"`
	Status          string  `json:"status"`
	TriggeredBy     string  `json:"triggeredBy"`
	StartedAt       *string `json:"startedAt"`
	FinishedAt      *string `json:"finishedAt"`
	DurationMs      int64   `json:"durationMs"`
	TotalFetched    int     `json:"totalFetched"`
	NewCount        int     `json:"newCount"`
	UpdatedCount    int     `json:"updatedCount"`
	RecordsWritten  int     `json:"recordsWritten"`
	ErrorCount      int     `json:"errorCount"`
	AggregateRating string  `json:"aggregateRating,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	NaturalKey string `json:"naturalKey"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	BusinessId string `json:"business_id"`
	Platform   string `json:"platform"`
}
