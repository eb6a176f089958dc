package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow trims expired members, then adds one only if the set is
// still under the limit. Scores are unix milliseconds.
//
// KEYS[1] window key
// ARGV[1] now, ARGV[2] window, ARGV[3] max, ARGV[4] member
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow is a sliding-window limiter shared by every process using the
// same Redis. Each identifier is a sorted set of call timestamps.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	max    int
	now    func() time.Time
}

// NewRedisWindow keys identifiers under prefix.
func NewRedisWindow(client redis.UniversalClient, prefix string, window time.Duration, max int) *RedisWindow {
	return &RedisWindow{
		client: client,
		prefix: prefix,
		window: window,
		max:    max,
		now:    time.Now,
	}
}

func (r *RedisWindow) key(id string) string {
	return r.prefix + id
}

// Allow runs the sliding-window script atomically for id.
func (r *RedisWindow) Allow(ctx context.Context, id string) (bool, error) {
	n, err := slidingWindow.Run(ctx, r.client, []string{r.key(id)},
		r.now().UnixMilli(), r.window.Milliseconds(), r.max, uuid.NewString()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", id, err)
	}
	return n == 1, nil
}

// Clear deletes id's window.
func (r *RedisWindow) Clear(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("rate limit reset %s: %w", id, err)
	}
	return nil
}
