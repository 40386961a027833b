package models

import "time"

// PostMetric is a per-day engagement snapshot: one row per
// (business_id, platform_post_id, metric_date). Same-day re-sync overwrites
// the values; a new day appends a new row. MetricDate is stored as a
// YYYY-MM-DD string so the unique index compares calendar days, not instants.
type PostMetric struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	BusinessId     string    `gorm:"uniqueIndex:idx_post_metric,priority:1;not null" json:"business_id"`
	PlatformPostId string    `gorm:"uniqueIndex:idx_post_metric,priority:2;size:128;not null" json:"platform_post_id"`
	MetricDate     string    `gorm:"uniqueIndex:idx_post_metric,priority:3;size:10;not null" json:"metric_date"`
	Views          int64     `json:"views"`
	Likes          int64     `json:"likes"`
	Comments       int64     `json:"comments"`
	Shares         int64     `json:"shares"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
