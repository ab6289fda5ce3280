// Package ratelimit implements fixed-window request limiting, backed by
// Redis when configured and by process memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes one Allow decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(limit int, count int64, ttl time.Duration) Result {
	r := Result{Allowed: count <= int64(limit), Limit: limit}
	if rem := int64(limit) - count; rem > 0 {
		r.Remaining = int(rem)
	}
	if !r.Allowed {
		r.RetryAfter = ttl
	}
	return r
}

// hitScript increments the counter and arms its expiry in one step. A key
// left without a TTL is re-armed so a window can never outlive its caller.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if n == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter shares counters between instances through Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := hitScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: hit: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}

	ttl := l.window
	if d := time.Duration(vals[1]) * time.Millisecond; d > 0 {
		ttl = d
	}
	return newResult(l.limit, vals[0], ttl), nil
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. Expired windows are
// dropped lazily once the map grows past sweepAt entries.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	sweepAt int

	now func() time.Time
}

func NewMemoryLimiter(limit int, d time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  d,
		windows: map[string]*window{},
		sweepAt: 1024,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.windows) >= l.sweepAt {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.sweepAt = max(1024, 2*len(l.windows))
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}
	w.count++
	return newResult(l.limit, w.count, w.resetAt.Sub(now)), nil
}
