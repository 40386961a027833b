package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"github.com/bsm/redislock"
)

// ErrLeaseBusy indicates another sync run already holds the lease for the
// same (business, platform) pair.
var ErrLeaseBusy = errors.New("sync already in progress for this business/platform")

// AcquireSyncLease obtains a run-scoped lease keyed by (business, platform).
// The lease is held for the whole run and must be released via the returned
// func; the TTL bounds crash recovery (an abandoned lease expires on its own).
func AcquireSyncLease(ctx context.Context, businessId string, platform string, ttl time.Duration) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		return nil, errors.New("service not ready (redis lock not initialized)")
	}

	lockKey := fmt.Sprintf("sync:%s:%s", platform, businessId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrLeaseBusy
	} else if err != nil {
		return nil, err
	}

	release := func() {
		// Release errors are tolerable: the TTL guarantees expiry.
		_ = lock.Release(context.Background())
	}
	return release, nil
}
