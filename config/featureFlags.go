package config

import (
	"os"
	"strings"
)

// StrictHealthTransitions forces a platform source to `error` status on any
// classified permanent auth failure, even when it was previously connected.
// The legacy behavior (leave stale `connected`) can be restored with:
// - STRICT_HEALTH_TRANSITIONS=false
func StrictHealthTransitions() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_HEALTH_TRANSITIONS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RawPayloadBucket returns the GCS bucket for archiving raw platform payloads
// per sync run. Archiving is disabled when empty.
//
// Set via env:
// - RAW_PAYLOAD_BUCKET=<bucket-name>
func RawPayloadBucket() string {
	return strings.TrimSpace(os.Getenv("RAW_PAYLOAD_BUCKET"))
}
