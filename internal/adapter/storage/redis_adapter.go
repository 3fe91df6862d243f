package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix     = "lock:"
	idempotencyKeyTTL = 24 * time.Hour
	lockTTL           = 10 * time.Second
	lockRetryInterval = 20 * time.Millisecond
	unlockTimeout     = 2 * time.Second
)

// Deletes the lock only while it still carries the caller's token, so an
// expired holder cannot release a lock someone else acquired since.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var extendLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: lockTTL}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Lock polls SET NX PX until the key is free or ctx ends. While held, the
// lock's TTL is refreshed every third of lockTTL, so it only lapses on its own
// when the holder stops renewing it (process death or a lost Redis link).
func (r *RedisAdapter) Lock(ctx context.Context, key string) (func(), error) {
	key = lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go func() {
				defer close(done)
				r.keepAlive(key, token, stop)
			}()

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					r.unlock(key, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (r *RedisAdapter) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		extended, err := extendLockScript.Run(ctx, r.client, []string{key}, token, r.lockTTL.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			slog.Warn("failed to extend redis lock", "key", key, "err", err)
		case extended == 0:
			slog.Warn("redis lock lost before release", "key", key)
			return
		}
	}
}

func (r *RedisAdapter) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		slog.Warn("failed to release redis lock", "key", key, "err", err)
	}
}
