package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
)

// RateLimiter hands out one token bucket per client. Buckets are keyed by
// authenticated user id, falling back to the client IP.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (r *RateLimiter) bucket(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		b = rate.NewLimiter(r.rps, r.burst)
		r.buckets[key] = b
	}
	return b
}

// Middleware rejects clients that exhaust their bucket with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if info := GetAuthInfo(c); info != nil {
			key = info.UserID
		}
		if !r.bucket(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
