package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cuentas:lock:"

// RedisLocker shares account locks between processes, e.g. the API server and
// the deposit worker pointing at the same database.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

// Lock waits up to the lock TTL for each key.
func (r *RedisLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				slog.Warn("Failed to release lock", "key", held[i].Key(), "error", err)
			}
		}
	}

	for _, key := range keys {
		obtainCtx, cancel := context.WithTimeout(ctx, r.ttl)
		l, err := r.client.Obtain(obtainCtx, keyPrefix+key, r.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(r.retry),
		})
		cancel()
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("acquire lock %s: %w", key, err)
			}
			return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
		}
		held = append(held, l)
	}

	return onceUnlock(release), nil
}

// NewRedisClient connects and pings, the way the rest of the stack fails fast
// on a bad address.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
