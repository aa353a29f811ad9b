package streaming

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "stream-lock:"

// Lock guards the single active stream of a chat across instances.
type Lock interface {
	// Acquire takes the lock for chatID if it is free.
	Acquire(ctx context.Context, chatID, token string) (bool, error)
	// Refresh extends a lock still held with token.
	Refresh(ctx context.Context, chatID, token string) error
	// Release frees the lock if it is still held with token.
	Release(ctx context.Context, chatID, token string) error
}

// Only the holder may extend or delete the lock.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisLock is a SETNX lock with a TTL, so a crashed instance frees its
// chats once the TTL runs out.
type RedisLock struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ Lock = (*RedisLock)(nil)

// NewRedisLock creates a lock whose entries expire after ttl unless refreshed.
func NewRedisLock(client redis.Cmdable, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl}
}

// TTL returns the lock expiry.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context, chatID, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+chatID, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire stream lock: %w", err)
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context, chatID, token string) error {
	n, err := refreshScript.Run(ctx, l.client, []string{lockKeyPrefix + chatID}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh stream lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context, chatID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + chatID}, token).Err(); err != nil {
		return fmt.Errorf("failed to release stream lock: %w", err)
	}
	return nil
}
