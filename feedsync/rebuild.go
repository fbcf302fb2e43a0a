package feedsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Weekly maintenance window for search index rebuilds: Monday 04:00-05:59.
const (
	maintenanceWeekday   = time.Monday
	maintenanceStartHour = 4
	maintenanceEndHour   = 5
)

func inMaintenanceWindow(t time.Time) bool {
	return t.Weekday() == maintenanceWeekday &&
		t.Hour() >= maintenanceStartHour && t.Hour() <= maintenanceEndHour
}

// IndexRebuilder is the external search-index collaborator.
type IndexRebuilder interface {
	Rebuild(ctx context.Context, productNames []string) (string, error)
}

// MaintenanceRebuildHook returns a post-commit hook that rebuilds the search
// index when a reconciliation finishes inside the weekly maintenance window.
// The rebuild is best-effort: failures are logged and never roll back or
// invalidate the run that fired the hook. now is overridable for tests; nil
// means time.Now.
func MaintenanceRebuildHook(db *gorm.DB, logger *logrus.Logger, idx IndexRebuilder, now func() time.Time) ReconcileHook {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, applied int) {
		if !inMaintenanceWindow(now()) {
			return
		}

		names, err := models.NewQueryService(db).AllProductNames(ctx)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				logger.WithField("module", "feedsync").Info("search index rebuild skipped: no products")
				return
			}
			logger.WithField("module", "feedsync").Error("search index rebuild: " + err.Error())
			return
		}

		logger.WithFields(logrus.Fields{
			"module":   "feedsync",
			"products": len(names),
		}).Info("starting search index rebuild")

		status, err := idx.Rebuild(ctx, names)
		if err != nil {
			logger.WithField("module", "feedsync").Error("search index rebuild failed: " + err.Error())
			return
		}
		logger.WithFields(logrus.Fields{
			"module": "feedsync",
			"status": status,
		}).Info("search index rebuilt")
	}
}
