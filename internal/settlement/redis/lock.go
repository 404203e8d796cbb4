package redis

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const settlementLockKey = "lock:settlement"

// releaseScript deletes the key only while it still holds our token, so a
// run whose lock already expired cannot drop a newer run's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Lock struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *Lock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Lock{Client: client, TTL: ttl, Logger: log}
}

// Acquire returns a token when the lock was taken and "" when another run
// holds it.
func (l *Lock) Acquire(ctx context.Context) (string, error) {
	token := uuid.New().String()
	ok, err := l.Client.SetNX(ctx, settlementLockKey, token, l.TTL).Result()
	if err != nil {
		return "", fmt.Errorf("acquire settlement lock: %w", err)
	}
	if !ok {
		return "", nil
	}
	l.Logger.Debug("REDIS", fmt.Sprintf("Settlement lock acquired for %s", l.TTL))
	return token, nil
}

func (l *Lock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.Client, []string{settlementLockKey}, token).Int()
	if err != nil {
		return fmt.Errorf("release settlement lock: %w", err)
	}
	if n == 0 {
		l.Logger.Warn("REDIS", "Settlement lock expired before release")
	}
	return nil
}
