package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Store counts hits per key within a fixed window.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore shares rate-limit state across api instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr bumps the window counter, setting its expiry on first hit.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		s.client.Expire(ctx, key, ttl)
	}
	return n, nil
}

// MemoryStore is a single-process store for dev and tests.
type MemoryStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

// Incr bumps the window counter, dropping it once the window lapses.
func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.expires[key]; ok && now.After(exp) {
		delete(s.counts, key)
		delete(s.expires, key)
	}
	if _, ok := s.counts[key]; !ok {
		s.expires[key] = now.Add(ttl)
	}
	s.counts[key]++
	return s.counts[key], nil
}

// RateLimiter caps a client at perMinute requests within the current
// minute window. Store errors fail open so a redis outage does not take
// the API down with it.
type RateLimiter struct {
	store     Store
	perMinute int
	now       func() time.Time
}

// NewRateLimiter creates a limiter over the given store.
func NewRateLimiter(store Store, perMinute int) *RateLimiter {
	return &RateLimiter{store: store, perMinute: perMinute, now: time.Now}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c.Request.Context(), ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(ctx context.Context, ip string) bool {
	key := windowKey(ip, l.now())
	n, err := l.store.Incr(ctx, key, time.Minute)
	if err != nil {
		return true
	}
	return n <= int64(l.perMinute)
}

// windowKey buckets a client into the current minute.
func windowKey(ip string, now time.Time) string {
	return "hostel:ratelimit:" + ip + ":" + now.UTC().Format("200601021504")
}
