package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"attendease/internal/auth"
)

// TokenBucket is an in-memory per-key rate limiter refilled every minute.
type TokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter holding capacity tokens and refilling
// perMinute tokens each minute. A zero capacity defaults to perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(c *gin.Context) string

// ByPrincipalOrIP keys authenticated requests by user id and anonymous ones
// by client IP.
func ByPrincipalOrIP(c *gin.Context) string {
	if p, ok := auth.FromContext(c); ok {
		return "user:" + p.UserID
	}
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// GinMiddleware enforces the limit per key. A nil key func uses ByPrincipalOrIP.
func (l *TokenBucket) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByPrincipalOrIP
	}
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
