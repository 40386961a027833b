package models

import "time"

// SocialPost identity is (business_id, platform_post_id); descriptive fields
// are refreshed on re-observation, rows are never deleted.
type SocialPost struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	BusinessId     string    `gorm:"uniqueIndex:idx_social_post,priority:1;not null" json:"business_id"`
	Platform       string    `gorm:"index;size:50;not null" json:"platform"`
	PlatformPostId string    `gorm:"uniqueIndex:idx_social_post,priority:2;size:128;not null" json:"platform_post_id"`
	Caption        string    `gorm:"type:text" json:"caption"`
	MediaUrl       string    `gorm:"size:512" json:"media_url"`
	Permalink      string    `gorm:"size:512" json:"permalink"`
	PostedAt       time.Time `json:"posted_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
