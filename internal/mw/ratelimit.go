package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter hands out one token bucket per client IP. Buckets of clients
// that stay quiet for limiterIdleTTL are evicted.
type IPRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(limiterIdleTTL, 2*limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if l, found := i.limiters.Get(ip); found {
		limiter := l.(*rate.Limiter)
		i.limiters.SetDefault(ip, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(i.r, i.b)
	i.limiters.SetDefault(ip, limiter)
	return limiter
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
