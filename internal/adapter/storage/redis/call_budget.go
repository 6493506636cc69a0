package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CallBudget implements ports.CallBudget with fixed-window counters.
type CallBudget struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewCallBudget creates a new Redis-backed call budget.
func NewCallBudget(client *goredis.Client) *CallBudget {
	return &CallBudget{
		client: client,
		prefix: "recon:budget:",
		now:    time.Now,
	}
}

// Allow spends one call from the rail's budget for the current window.
// It uses a fixed-window counter: INCR + EXPIRE on a key scoped by window id.
func (b *CallBudget) Allow(ctx context.Context, rail string, limit int64, window time.Duration) (bool, error) {
	windowSecs := int64(window / time.Second)
	if windowSecs <= 0 {
		windowSecs = 1
	}
	windowID := b.now().Unix() / windowSecs
	key := fmt.Sprintf("%s%s:%d", b.prefix, rail, windowID)

	count, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis call budget incr: %w", err)
	}

	// First call of a window sets its expiry.
	if count == 1 {
		if err := b.client.Expire(ctx, key, window+time.Second).Err(); err != nil {
			return false, fmt.Errorf("redis call budget expire: %w", err)
		}
	}

	return count <= limit, nil
}
