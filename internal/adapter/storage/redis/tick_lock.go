package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TickLock implements ports.TickLock using Redis SET NX.
type TickLock struct {
	client *goredis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewTickLock creates a new Redis-backed tick lock.
func NewTickLock(client *goredis.Client) *TickLock {
	return &TickLock{
		client: client,
		prefix: "recon:lock:",
		tokens: make(map[string]string),
	}
}

// Acquire takes the rail lock for ttl. Returns false if it is already held.
func (l *TickLock) Acquire(ctx context.Context, rail string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	result, err := l.client.SetArgs(ctx, l.prefix+rail, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis tick lock acquire: %w", err)
	}
	if result != "OK" {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[rail] = token
	l.mu.Unlock()
	return true, nil
}

// Release gives the rail lock back if this process still owns it.
func (l *TickLock) Release(ctx context.Context, rail string) error {
	l.mu.Lock()
	token, ok := l.tokens[rail]
	delete(l.tokens, rail)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + rail}, token).Err(); err != nil {
		return fmt.Errorf("redis tick lock release: %w", err)
	}
	return nil
}
