package platformsync

import (
	"errors"
	"fmt"
	"net/http"
)

// Classification buckets every upstream failure into the categories the
// health updater and the HTTP layer care about. Clients never retry; retry
// policy belongs to the caller.
type Classification string

const (
	ClassUnauthorized Classification = "unauthorized"
	ClassRateLimited  Classification = "rate_limited"
	ClassNotFound     Classification = "not_found"
	ClassTransient    Classification = "transient"
	ClassTimeout      Classification = "timeout"
)

// NotConfiguredError means the business has no usable source for the
// platform (no place id, no linked account). Surfaced before any SyncRun is
// created; there is nothing to audit yet.
type NotConfiguredError struct {
	Platform string
	Reason   string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Platform, e.Reason)
}

// AuthError covers missing credentials and failed token exchange/validation.
// Permanent distinguishes a grant that is definitively broken (revoked,
// rejected by the platform) from a resolution hiccup; only permanent failures
// regress connection health. NotConnected marks the expected "user never
// linked this platform" case for friendlier surfacing.
type AuthError struct {
	Platform     string
	Reason       string
	NotConnected bool
	Permanent    bool
	Err          error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authorization failed: %s", e.Platform, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-success response from a platform API.
type UpstreamError struct {
	Platform   string
	Class      Classification
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s api error (%s, status %d): %s", e.Platform, e.Class, e.StatusCode, e.Body)
}

// Permanent reports whether the failure should regress connection health.
// Only an authorization rejection is treated as permanent; not-found and
// quota blips resolve without operator action on the grant.
func (e *UpstreamError) Permanent() bool {
	return e.Class == ClassUnauthorized
}

func classifyStatus(code int) Classification {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassUnauthorized
	case code == http.StatusTooManyRequests:
		return ClassRateLimited
	case code == http.StatusNotFound:
		return ClassNotFound
	default:
		return ClassTransient
	}
}

// IsPermanentAuthFailure reports whether err is a classified permanent
// authorization failure (the only case that forces a source to `error`).
func IsPermanentAuthFailure(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Permanent
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Permanent()
	}
	return false
}
