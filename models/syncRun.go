package models

import "time"

// SyncRun is the append-only audit record for one synchronization attempt.
// Rows are created with status `running` before any external call and
// finalized exactly once; they are never mutated afterwards and never deleted.
type SyncRun struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"index;not null" json:"business_id"`
	Platform    string `gorm:"index;size:50;not null" json:"platform"`
	Status      string `gorm:"size:20;not null" json:"status"`
	TriggeredBy string `gorm:"size:20" json:"triggered_by"`

	TotalFetched   int `json:"total_fetched"`
	NewCount       int `json:"new_count"`
	UpdatedCount   int `json:"updated_count"`
	RecordsWritten int `json:"records_written"`
	ErrorCount     int `json:"error_count"`

	// Aggregate rating reported by the reviews platform, e.g. "4.3".
	AggregateRating string `gorm:"size:16" json:"aggregate_rating"`

	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	ParentRunId  *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	DurationMs   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunError records a single record-level failure inside a run; rows back
// the partial-write policy (the run continues past individual bad records).
type SyncRunError struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	EntityType string    `gorm:"size:50" json:"entity_type"`
	NaturalKey string    `gorm:"size:128" json:"natural_key"`
	ErrorCode  string    `gorm:"size:64" json:"error_code"`
	Message    string    `gorm:"type:text" json:"message"`
	Retryable  bool      `gorm:"default:false" json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
