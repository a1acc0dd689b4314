package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter is a fixed-window hit counter keyed by string. Incr returns the
// count within the current window after counting this hit.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter counts in Redis with INCR + EXPIRE, shared across instances.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter returns a counter over the given client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}
	return count, nil
}

// MemoryCounter is the single-instance fallback when Redis is not configured.
type MemoryCounter struct {
	mu   sync.Mutex
	m    map[string]*memWindow
	nowF func() time.Time
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryCounter returns an in-process counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{m: make(map[string]*memWindow), nowF: time.Now}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowF()
	w, ok := c.m[key]
	if !ok || now.After(w.resetAt) {
		w = &memWindow{resetAt: now.Add(window)}
		c.m[key] = w
	}
	w.count++
	return w.count, nil
}

// RateLimit rejects requests once keyFunc's key exceeds limit hits per
// window. Counter errors fail open: throttling is protection, not a
// correctness gate.
func RateLimit(counter Counter, log *zap.Logger, prefix string, limit int, window time.Duration, keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:%s", prefix, keyFunc(c))
		count, err := counter.Incr(c.UserContext(), key, window)
		if err != nil {
			log.Warn("rate limit counter unavailable", zap.Error(err))
			return c.Next()
		}
		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{"code": "rate_limited", "message": "too many requests"},
			})
		}
		return c.Next()
	}
}
