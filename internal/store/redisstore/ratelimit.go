package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter allows limit hits per key per window across all
// replicas sharing the Redis instance.
type FixedWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func (s *Store) FixedWindowLimiter(name string, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		rdb:    s.rdb,
		prefix: s.key("ratelimit", name),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowMs := l.window.Milliseconds()
	if l.limit <= 0 || windowMs <= 0 {
		return true, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	n, err := fixedWindowScript.Run(ctx, l.rdb, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return n <= int64(l.limit), nil
}
