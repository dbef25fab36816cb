package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ridehail/internal/errs"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimit applies a token bucket per caller, keyed by uid when
// authenticated and by client IP otherwise. A non-positive limit disables it.
func RateLimit(limit float64, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := &limiters{limit: rate.Limit(limit), burst: burst, buckets: make(map[string]*bucket)}
	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.allow(key, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": errs.CodeRateLimited})
			return
		}
		c.Next()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiters struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

func (l *limiters) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > limiterIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
