package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/redis"
)

const (
	redisInvalidateChannel = "chat:invalidate"
	redisHistoryTTL        = 30 * time.Minute
)

const (
	scopeHistory = "history"
	scopeVisitor = "visitor"
)

type invalidateMessage struct {
	VisitorID int64  `json:"visitor_id"`
	Scope     string `json:"scope"`
}

// historyCache keeps recent conversation history in redis so turn handling
// avoids a database round trip. Cache misses always fall back to the
// database; a nil client disables caching entirely.
type historyCache struct {
	client *redis.Client
}

func newHistoryCache(client *redis.Client) *historyCache {
	return &historyCache{client: client}
}

// startListener consumes invalidation broadcasts and drops the named keys.
func (c *historyCache) startListener() {
	if c == nil || c.client == nil {
		return
	}
	raw := c.client.Raw()
	if raw == nil {
		return
	}
	go func() {
		ctx := context.Background()
		pubsub := raw.Subscribe(ctx, redisInvalidateChannel)
		for msg := range pubsub.Channel() {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Printf("history invalidation decode failed: %v", err)
				continue
			}
			c.drop(inv.VisitorID)
		}
	}()
}

func (c *historyCache) publishInvalidation(visitorID int64, scope string) {
	if c == nil || c.client == nil {
		return
	}
	raw := c.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(invalidateMessage{VisitorID: visitorID, Scope: scope})
	if err != nil {
		log.Printf("history invalidation marshal failed: %v", err)
		return
	}
	if err := raw.Publish(context.Background(), redisInvalidateChannel, payload).Err(); err != nil {
		log.Printf("history publish invalidation failed: %v", err)
	}
}

func historyKey(visitorID int64) string {
	return fmt.Sprintf("chat:history:%d", visitorID)
}

func (c *historyCache) cacheHistory(visitorID int64, history []*models.Message) {
	if c == nil || c.client == nil || visitorID <= 0 {
		return
	}
	data, err := json.Marshal(history)
	if err != nil {
		log.Printf("history cache marshal failed: %v", err)
		return
	}
	if err := c.client.Set(context.Background(), historyKey(visitorID), data, redisHistoryTTL); err != nil {
		log.Printf("history cache set failed: %v", err)
	}
}

func (c *historyCache) loadHistory(visitorID int64) ([]*models.Message, bool) {
	if c == nil || c.client == nil || visitorID <= 0 {
		return nil, false
	}
	raw, err := c.client.Get(context.Background(), historyKey(visitorID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("history cache get failed: %v", err)
		}
		return nil, false
	}
	var history []*models.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		log.Printf("history cache decode failed: %v", err)
		return nil, false
	}
	return history, true
}

func (c *historyCache) drop(visitorID int64) {
	if c == nil || c.client == nil || visitorID <= 0 {
		return
	}
	if err := c.client.Del(context.Background(), historyKey(visitorID)); err != nil && err != redis.ErrCacheMiss {
		log.Printf("history cache del failed: %v", err)
	}
}
