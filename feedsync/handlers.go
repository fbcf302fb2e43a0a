package feedsync

import (
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
	"github.com/gin-gonic/gin"
)

// TriggerSyncHandler queues a manual feed sync run. The body may carry a
// feedUrl override; otherwise FEED_URL applies.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		run, err := TriggerRun(c.Request.Context(), models.SyncTriggeredManual, req.FeedURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, toRunResponse(*run))
	}
}

func HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()

		var runs []models.FeedSyncRun
		if err := db.WithContext(c.Request.Context()).Order("id DESC").Limit(20).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncHistoryResponse{Items: make([]SyncRunResponse, 0, len(runs))}
		for _, run := range runs {
			resp.Items = append(resp.Items, toRunResponse(run))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func toRunResponse(run models.FeedSyncRun) SyncRunResponse {
	out := SyncRunResponse{
		ID:             run.ID,
		Status:         run.Status,
		TriggeredBy:    run.TriggeredBy,
		DurationMs:     run.DurationMs,
		RecordsSeen:    run.RecordsSeen,
		RecordsApplied: run.RecordsApplied,
		Message:        run.Message,
	}
	if run.StartedAt != nil {
		s := run.StartedAt.UTC().Format(time.RFC3339)
		out.StartedAt = &s
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.UTC().Format(time.RFC3339)
		out.FinishedAt = &s
	}
	return out
}
