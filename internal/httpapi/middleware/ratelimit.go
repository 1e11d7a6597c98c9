package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/common"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit throttles per user, or per client IP for guests. When the limiter
// itself fails the request is let through and the failure logged.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := UserIDFromContext(c); ok {
			key = "user:" + strconv.FormatUint(uid, 10)
		}
		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			common.LoggerFromContext(c.Request.Context()).Warn("rate limiter unavailable", "err", err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many requests")
			return
		}
		c.Next()
	}
}

// LocalLimiter is an in-process token bucket per key, used when no Redis is
// configured. Limits are per replica.
type LocalLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*localBucket
	sweeps  int
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &LocalLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*localBucket),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	l.sweeps++
	if l.sweeps >= 1024 {
		l.sweeps = 0
		for k, v := range l.buckets {
			if now.Sub(v.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
	}
	return b.lim.AllowN(now, 1), nil
}
