// sync-dispatcher enumerates connected platform sources and enqueues one
// system-triggered sync per source over Pub/Sub. Intended to run on a
// schedule (Cloud Scheduler / cron).
//
// Usage:
//
//	go run ./cmd/sync-dispatcher [-platform google|tiktok]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/platformsync"
	"github.com/sirupsen/logrus"
)

func main() {
	platform := flag.String("platform", "", "Optional: dispatch only one platform. If empty, dispatches all supported platforms.")
	flag.Parse()

	if *platform != "" && !models.IsSupportedPlatform(strings.TrimSpace(*platform)) {
		fmt.Fprintf(os.Stderr, "unsupported platform %q\n", *platform)
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	gw := platformsync.NewServiceGateway()
	sources, err := gw.ListConnectedSources(ctx, strings.TrimSpace(*platform))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list connected sources: %v\n", err)
		os.Exit(1)
	}
	if len(sources) == 0 {
		fmt.Println("no connected sources to dispatch")
		return
	}

	logger := config.GetLogger()
	published, failed := 0, 0
	for _, source := range sources {
		if err := platformsync.PublishSyncRequest(ctx, source.BusinessId, source.Platform); err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"business_id": source.BusinessId,
				"platform":    source.Platform,
			}).Error(err)
			continue
		}
		published++
	}

	fmt.Printf("dispatched %d sync requests (%d failed) across %d sources\n", published, failed, len(sources))
	if failed > 0 {
		os.Exit(1)
	}
}
