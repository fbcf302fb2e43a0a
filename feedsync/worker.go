package feedsync

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/searchidx"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	runLockKey = "pharmfeed:feed-sync-run"
	runLockTTL = 15 * time.Minute
)

// CreateRun records a queued feed sync run. An empty feedURL falls back to
// the FEED_URL environment variable.
func CreateRun(ctx context.Context, db *gorm.DB, triggeredBy string, feedURL string) (*models.FeedSyncRun, error) {
	run := models.FeedSyncRun{
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: triggeredBy,
		FeedURL:     strings.TrimSpace(feedURL),
	}
	if run.FeedURL == "" {
		run.FeedURL = strings.TrimSpace(os.Getenv("FEED_URL"))
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// TriggerRun queues a run and hands it off: to Pub/Sub when
// FEED_SYNC_USE_PUBSUB=true, otherwise to an in-process goroutine.
func TriggerRun(ctx context.Context, triggeredBy string, feedURL string) (*models.FeedSyncRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not ready")
	}
	run, err := CreateRun(ctx, db, triggeredBy, feedURL)
	if err != nil {
		return nil, err
	}

	if envBoolDefault("FEED_SYNC_USE_PUBSUB", false) {
		if err := PublishFeedSync(ctx, run.ID); err != nil {
			_ = finishRun(ctx, db, run, models.SyncRunStatusFailed, "publish failed: "+err.Error(), 0, 0)
			return nil, err
		}
		return run, nil
	}

	go func() {
		if err := RunFeedSync(context.Background(), run.ID); err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"module": "feedsync",
				"run_id": run.ID,
			}).Error("feed sync run failed: " + err.Error())
		}
	}()
	return run, nil
}

// RunFeedSync executes one full ingestion run: fetch, normalize, reconcile,
// bookkeeping. Runs are serialized with a redis lock because the reconciler
// assumes a single writer; an overlapping trigger is skipped, not queued.
func RunFeedSync(ctx context.Context, runId uint) error {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return errors.New("database not ready")
	}

	var run models.FeedSyncRun
	if err := db.WithContext(ctx).Where("id = ?", runId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed {
		// Redelivery of a finished run; nothing to do.
		return nil
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, runLockKey, runLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				logger.WithFields(logrus.Fields{
					"module": "feedsync",
					"run_id": run.ID,
				}).Warn("feed sync already running; skipping run")
				return finishRun(ctx, db, &run, models.SyncRunStatusFailed, "another run holds the sync lock", 0, 0)
			}
			// Redis unavailable: continue; external scheduling is expected
			// to prevent overlapping runs.
			logger.WithField("module", "feedsync").Warn("sync lock unavailable: " + err.Error())
		} else {
			defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
		}
	}

	startedAt := time.Now()
	if err := db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}
	run.StartedAt = &startedAt

	raw, err := newFeedClient().fetch(ctx, run.FeedURL)
	if err != nil {
		_ = finishRun(ctx, db, &run, models.SyncRunStatusFailed, err.Error(), 0, 0)
		return err
	}

	records, err := Normalize(raw)
	if err != nil {
		var formatErr *FeedFormatError
		if errors.As(err, &formatErr) {
			logger.WithFields(logrus.Fields{
				"module": "feedsync",
				"run_id": run.ID,
				"input":  formatErr.Input,
			}).Error(formatErr.Error())
		}
		_ = finishRun(ctx, db, &run, models.SyncRunStatusFailed, err.Error(), 0, 0)
		return err
	}

	reconciler := NewReconciler(db, logger, MaintenanceRebuildHook(db, logger, searchidx.NewClient(), nil))
	applied, err := reconciler.Reconcile(ctx, records)
	if err != nil {
		_ = finishRun(ctx, db, &run, models.SyncRunStatusFailed, err.Error(), 0, len(records))
		return err
	}

	return finishRun(ctx, db, &run, models.SyncRunStatusSuccess, "", applied, len(records))
}

func finishRun(ctx context.Context, db *gorm.DB, run *models.FeedSyncRun, status string, message string, applied int, seen int) error {
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":          status,
		"message":         message,
		"records_applied": applied,
		"records_seen":    seen,
		"finished_at":     finishedAt,
		"duration_ms":     durationMs,
	}).Error
}

// RunScheduler triggers one feed sync per day at FEED_SYNC_HOUR (default 3),
// standing in for an external cron when none is configured. Enable with
// FEED_SYNC_SCHEDULER_ENABLED=true.
func RunScheduler(ctx context.Context) {
	if !envBoolDefault("FEED_SYNC_SCHEDULER_ENABLED", false) {
		return
	}
	hour := intFromEnv("FEED_SYNC_HOUR", 3)
	logger := config.GetLogger()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastRunDay string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if config.GetDB() == nil {
				continue
			}
			if now.Hour() != hour {
				continue
			}
			day := now.Format("2006-01-02")
			if day == lastRunDay {
				continue
			}
			lastRunDay = day
			if _, err := TriggerRun(ctx, models.SyncTriggeredSystem, ""); err != nil {
				logger.WithField("module", "feedsync").Error("scheduled feed sync failed to start: " + err.Error())
			}
		}
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "" {
		return def
	}
	return val == "true" || val == "1" || val == "yes"
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
