package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docsync/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// RetryAfter is how long a rejected caller should wait.
	RetryAfter() time.Duration
	// Name labels the limiter in metrics.
	Name() string
}

type bucket struct {
	lim  *rate.Limiter
	last time.Time
}

// MemoryLimiter keeps a token bucket per key in process memory. A bucket
// left unused long enough to refill completely is dropped, since a new one
// behaves the same.
type MemoryLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

// NewMemoryLimiter allows rps events per second with bursts of burst.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	// with no refill a bucket never becomes equivalent to a fresh one
	if rps > 0 {
		m.idle = time.Duration(float64(burst) / rps * float64(time.Second))
		if m.idle < time.Minute {
			m.idle = time.Minute
		}
	}
	return m
}

func (m *MemoryLimiter) Name() string { return "memory" }

// RetryAfter is the time one token takes to refill.
func (m *MemoryLimiter) RetryAfter() time.Duration {
	if m.rps <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(m.rps))
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	if m.idle > 0 && now.Sub(m.swept) >= m.idle {
		for k, b := range m.buckets {
			if now.Sub(b.last) >= m.idle {
				delete(m.buckets, k)
			}
		}
		m.swept = now
	}
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.rps, m.burst)}
		m.buckets[key] = b
	}
	b.last = now
	m.mu.Unlock()
	return b.lim.AllowN(now, 1), nil
}

// RedisLimiter is a fixed-window counter shared by every instance using the
// same Redis: INCR a per-window key and compare against
// floor(rps*window)+burst.
type RedisLimiter struct {
	client  *redis.Client
	window  time.Duration
	allowed int64
	prefix  string
	now     func() time.Time
}

// NewRedisLimiter builds a limiter with the given window; windows shorter
// than a second are rounded up to one second.
func NewRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	window = window.Truncate(time.Second)
	return &RedisLimiter{
		client:  client,
		window:  window,
		allowed: int64(rps*window.Seconds()) + int64(burst),
		prefix:  "rl:",
		now:     time.Now,
	}
}

func (r *RedisLimiter) Name() string { return "redis" }

// RetryAfter is the time left in the current window.
func (r *RedisLimiter) RetryAfter() time.Duration {
	elapsed := time.Duration(r.now().UnixNano()) % r.window
	return r.window - elapsed
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	secs := int64(r.window / time.Second)
	bucket := r.now().Unix() / secs
	redisKey := fmt.Sprintf("%s%s:%d", r.prefix, key, bucket)
	cnt, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		_ = r.client.Expire(ctx, redisKey, r.window+time.Second).Err()
	}
	return cnt <= r.allowed, nil
}

// RateLimit returns a Gin middleware enforcing l per caller. The caller is
// the authenticated subject when AuthMiddleware ran before, the client IP
// otherwise.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), callerKey(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if !ok {
			c.Header("Retry-After", retryAfterSeconds(l.RetryAfter()))
			metrics.RateLimitRejected.WithLabelValues(l.Name()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(l.Name()).Inc()
		c.Next()
	}
}

// retryAfterSeconds renders d as whole seconds, rounded up, at least 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func callerKey(c *gin.Context) string {
	if sub := c.GetString(SubjectKey); sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
