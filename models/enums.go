package models

const (
	PlatformGoogle = "google"
	PlatformTikTok = "tiktok"
)

// SupportedPlatforms lists every platform a business gets a source row for at
// provisioning time.
var SupportedPlatforms = []string{PlatformGoogle, PlatformTikTok}

const (
	SourceStatusDisconnected = "disconnected"
	SourceStatusPending      = "pending"
	SourceStatusConnected    = "connected"
	SourceStatusError        = "error"
)

const (
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

const (
	GrantStatusActive  = "active"
	GrantStatusRevoked = "revoked"
	GrantStatusExpired = "expired"
)

const (
	UserRoleAdmin = "Admin"
	UserRoleStaff = "Staff"
)

func IsSupportedPlatform(platform string) bool {
	for _, p := range SupportedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}
