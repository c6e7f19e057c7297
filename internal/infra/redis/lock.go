package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rami-aouinti/shopware-sub000/internal/ratelimit"
)

// releaseScript deletes the key only if this owner still holds it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ratelimit.Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX PX advisory lock. A holder that outlives the TTL
// loses the lock silently; keep the TTL above the mainframe timeout.
type RedisLocker struct {
	client *goredis.Client
	prefix string
}

func NewRedisLocker(client *goredis.Client) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisLocker{client: client, prefix: "ordersync:lock:"}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}

	fullKey := l.prefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, ratelimit.ErrLockHeld
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}

	return release, nil
}
