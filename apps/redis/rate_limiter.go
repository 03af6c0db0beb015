package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/redis/go-redis/v9"
)

// ConversationLimit caps how many activities a single conversation may
// trigger per window
type ConversationLimit struct {
	MaxActivities int
	Window        time.Duration
}

// ConversationLimiter counts activities per conversation in fixed windows
type ConversationLimiter struct {
	client redis.UniversalClient
	limit  ConversationLimit
}

func NewConversationLimiter(client redis.UniversalClient, limit ConversationLimit) *ConversationLimiter {
	return &ConversationLimiter{client: client, limit: limit}
}

func rateLimitKey(conversationID string) string {
	return fmt.Sprintf("rate_limit:bot:%s", conversationID)
}

// Allow increments the conversation counter and reports whether it is still
// within the limit. Redis errors allow the activity.
func (l *ConversationLimiter) Allow(ctx context.Context, conversationID string) bool {
	if l == nil || l.client == nil || l.limit.MaxActivities <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	key := rateLimitKey(conversationID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Warning("Redis rate limit error: %v", err)
		return true
	}
	if count == 1 {
		// A counter without a TTL would block the conversation for good.
		if err := l.client.Expire(ctx, key, l.limit.Window).Err(); err != nil {
			log.Warning("Redis rate limit expire error, dropping counter %s: %v", key, err)
			if err := l.client.Del(ctx, key).Err(); err != nil {
				log.Error("Failed to drop rate limit counter %s: %v", key, err)
			}
			return true
		}
	}
	return count <= int64(l.limit.MaxActivities)
}
