package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis lock tuning.
const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another process is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisClient is the subset of *redis.Client the lock needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLocker serializes refreshes across processes sharing one database.
// It takes the process-local lock first so a single process never polls
// Redis against itself.
type RedisLocker struct {
	client    RedisClient
	local     *KeyedMutex
	ttl       time.Duration
	poll      time.Duration
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewRedisLocker creates a RedisLocker. The lock expires after ttl even if
// the holder dies; zero means 30s.
func NewRedisLocker(client RedisClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}

	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &RedisLocker{
		client:    client,
		local:     NewKeyedMutex(),
		ttl:       ttl,
		poll:      defaultPollInterval,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Lock acquires key locally and in Redis, polling until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("tokens: redis lock %s: %w", key, err)
		}

		if ok {
			break
		}

		if err := l.sleepFunc(ctx, l.poll); err != nil {
			unlockLocal()
			return nil, err
		}
	}

	return func() {
		// Release with a fresh context: the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("releasing redis lock failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}

		unlockLocal()
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
