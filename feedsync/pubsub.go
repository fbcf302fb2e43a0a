package feedsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PublishFeedSync hands a queued run to the feed-sync topic.
func PublishFeedSync(ctx context.Context, runId uint) error {
	topicName := strings.TrimSpace(os.Getenv("FEED_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "feed-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("FEED_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{RunId: runId}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler processes feed-sync push deliveries. Malformed envelopes
// are acked and dropped to avoid retry loops; a processing failure returns
// 5xx so Pub/Sub redelivers.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "Unmarshal envelope", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "Unmarshal payload", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if payload.RunId == 0 {
			c.Status(http.StatusNoContent)
			return
		}

		if err := RunFeedSync(c.Request.Context(), payload.RunId); err != nil {
			logger.WithFields(logrus.Fields{
				"module":     "feedsync",
				"run_id":     payload.RunId,
				"message_id": envelope.Message.ID,
			}).Error("pubsub feed sync failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
