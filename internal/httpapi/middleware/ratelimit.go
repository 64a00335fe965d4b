package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/common"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per authenticated user, falling back to
// the client IP.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	expiry  time.Duration
	clients map[string]*limiterEntry
	log     *zap.Logger
}

func NewRateLimiter(rps float64, burst int, log *zap.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		expiry:  time.Hour,
		clients: make(map[string]*limiterEntry),
		log:     log,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !r.get(key).Allow() {
			r.log.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			common.Fail(c, http.StatusTooManyRequests, "RateLimited", "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	e, ok := r.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Cleanup drops idle buckets every interval until stop is closed.
func (r *RateLimiter) Cleanup(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.prune(time.Now())
		}
	}
}

func (r *RateLimiter) prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.clients {
		if now.Sub(e.lastSeen) > r.expiry {
			delete(r.clients, k)
		}
	}
}
