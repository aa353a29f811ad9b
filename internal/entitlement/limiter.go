package entitlement

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts hits in a sliding window.
type RateLimiter interface {
	// Allow records a hit for key if fewer than limit hits happened within the
	// last window and reports whether it did.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// slidingWindowScript keeps one sorted-set member per hit scored by its
// timestamp in milliseconds.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window)
		return 1
	end
	return 0
`)

// RedisLimiter is a RateLimiter shared by every instance using the same Redis.
type RedisLimiter struct {
	client redis.Scripter
	clock  clockwork.Clock
	prefix string
}

// NewRedisLimiter creates a limiter storing its windows under "ratelimit:".
func NewRedisLimiter(client redis.Scripter, clock clockwork.Clock) *RedisLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisLimiter{client: client, clock: clock, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.clock.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	allowed, err := slidingWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		now, window.Milliseconds(), limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return allowed == 1, nil
}

// MemoryLimiter is a RateLimiter local to this process.
type MemoryLimiter struct {
	clock clockwork.Clock

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(clock clockwork.Clock) *MemoryLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryLimiter{clock: clock, hits: make(map[string][]time.Time)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-window)

	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= limit {
		l.hits[key] = hits
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}
