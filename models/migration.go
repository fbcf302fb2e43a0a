package models

import (
	"log"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

// AutoMigrate runs schema migration against an explicit handle so tests can
// migrate their own store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Product{}, &Location{}, &LocationProduct{},
		&FeedSyncRun{},
	)
}
