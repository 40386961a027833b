package models

import "time"

// PlatformSource is the per-(business, platform) connection record. It is
// created at business provisioning in `disconnected` state and mutated only
// by the sync engine and the connect/disconnect handlers.
type PlatformSource struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	BusinessId        string     `gorm:"uniqueIndex:idx_platform_source,priority:1;not null" json:"business_id"`
	Platform          string     `gorm:"uniqueIndex:idx_platform_source,priority:2;size:50;not null" json:"platform"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	PlaceId           string     `gorm:"size:128" json:"place_id"`
	Handle            string     `gorm:"size:128" json:"handle"`
	ExternalAccountId string     `gorm:"size:128" json:"external_account_id"`
	DisplayName       string     `gorm:"size:255" json:"display_name"`
	AvatarUrl         string     `gorm:"size:512" json:"avatar_url"`
	Bio               string     `gorm:"type:text" json:"bio"`
	FollowerCount     int64      `json:"follower_count"`
	FollowingCount    int64      `json:"following_count"`
	LikeCount         int64      `json:"like_count"`
	VideoCount        int64      `json:"video_count"`
	IsVerified        bool       `gorm:"default:false" json:"is_verified"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
