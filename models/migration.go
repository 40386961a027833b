package models

import (
	"log"

	"bitbucket.org/mktfocus/marketing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&PlatformSource{},
		&PlatformOAuthGrant{},
		&Review{}, &SocialPost{}, &PostMetric{},
		&SyncRun{}, &SyncRunError{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
