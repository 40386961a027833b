package models

import "time"

// Review is the canonical customer review. Identity is the natural key
// (business_id, platform, review_id). Platform-sourced fields are refreshed by
// re-sync; the enrichment fields (response draft, action plan, promo idea) are
// written by a separate process and are never touched by the engine.
type Review struct {
	ID                uint      `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"uniqueIndex:idx_review_natural_key,priority:1;not null" json:"business_id"`
	Platform          string    `gorm:"uniqueIndex:idx_review_natural_key,priority:2;size:50;not null" json:"platform"`
	ReviewId          string    `gorm:"uniqueIndex:idx_review_natural_key,priority:3;size:128;not null" json:"review_id"`
	Rating            int       `json:"rating"`
	Text              string    `gorm:"type:text" json:"text"`
	ReviewerName      string    `gorm:"size:255" json:"reviewer_name"`
	ReviewerAvatarUrl string    `gorm:"size:512" json:"reviewer_avatar_url"`
	PostedAt          time.Time `json:"posted_at"`

	// AI enrichment, written out-of-band.
	ResponseDraft string `gorm:"type:text" json:"response_draft"`
	ActionPlan    string `gorm:"type:text" json:"action_plan"`
	PromoIdea     string `gorm:"type:text" json:"promo_idea"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
