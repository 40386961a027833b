package models

import "time"

// PlatformOAuthGrant is the stored OAuth grant for a platform, shared by all
// businesses of an agency. Written by the OAuth connect flow; the sync engine
// only reads it, except to mark a permanently rejected grant.
type PlatformOAuthGrant struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	AgencyId     string     `gorm:"uniqueIndex:idx_oauth_grant,priority:1;size:100;not null" json:"agency_id"`
	Platform     string     `gorm:"uniqueIndex:idx_oauth_grant,priority:2;size:50;not null" json:"platform"`
	Status       string     `gorm:"size:20;not null" json:"status"`
	AccessToken  string     `gorm:"type:text" json:"access_token"`
	RefreshToken string     `gorm:"type:text" json:"refresh_token"`
	OpenId       string     `gorm:"size:128" json:"open_id"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
