package platformsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PublishSyncRequest enqueues a system-triggered sync for one (business,
// platform) pair. Used by the dispatcher; manual triggers run synchronously.
func PublishSyncRequest(ctx context.Context, businessId string, platform string) error {
	topicName := strings.TrimSpace(os.Getenv("PLATFORM_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "platform-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("PLATFORM_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		BusinessId: businessId,
		Platform:   platform,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler consumes push deliveries for system-triggered syncs. It
// always acknowledges: a malformed message would redeliver forever, and a
// failed run is already audited in its SyncRun row.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.BusinessId == "" || !models.IsSupportedPlatform(payload.Platform) {
			c.Status(204)
			return
		}

		ctx := utils.SetSkipTenantScopeInContext(c.Request.Context(), true)
		ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)
		if _, err := engine.Sync(ctx, payload.Platform, payload.BusinessId, models.SyncTriggeredSystem, nil); err != nil {
			logrus.WithFields(logrus.Fields{
				"business_id": payload.BusinessId,
				"platform":    payload.Platform,
				"error":       err.Error(),
			}).Warn("system-triggered sync failed")
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
