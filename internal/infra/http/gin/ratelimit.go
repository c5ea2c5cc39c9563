package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// UserRateLimiter keeps one token bucket per authenticated user, falling back to the client IP.
type UserRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func NewUserRateLimiter(perMinute, burst int, logger *slog.Logger) *UserRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(float64(perMinute) / 60.0)
	if perMinute <= 0 {
		limit = rate.Inf
	}
	return &UserRateLimiter{
		rps:    limit,
		burst:  burst,
		idle:   5 * time.Minute,
		now:    time.Now,
		logger: logger,
	}
}

func (l *UserRateLimiter) limiterFor(key string) *rate.Limiter {
	now := l.now()
	v, _ := l.visitors.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: now})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = now
	vi.mu.Unlock()
	return vi.limiter
}

// Run evicts idle buckets until ctx is cancelled.
func (l *UserRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *UserRateLimiter) evict() {
	cutoff := l.now().Add(-l.idle)
	l.visitors.Range(func(k, v any) bool {
		vi := v.(*visitor)
		vi.mu.Lock()
		stale := vi.lastSeen.Before(cutoff)
		vi.mu.Unlock()
		if stale {
			l.visitors.Delete(k)
		}
		return true
	})
}

func (l *UserRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p, ok := currentPrincipal(c); ok {
			key = "user:" + p.ID
		}
		if !l.limiterFor(key).AllowN(l.now(), 1) {
			if l.logger != nil {
				l.logger.Warn("rate limit exceeded", "key", key, "path", c.FullPath())
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
