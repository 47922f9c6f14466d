package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/davidesantangelo/yll/internal/metrics"
)

// WindowCounter counts hits per key within a fixed window. Backed by
// Redis in production, faked in tests.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisWindowCounter implements WindowCounter with INCR + EXPIRE
type RedisWindowCounter struct {
	client *redis.Client
}

func NewRedisWindowCounter(client *redis.Client) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

func (c *RedisWindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// First hit opens the window
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// RateLimiter rejects clients exceeding a fixed request budget per window
type RateLimiter struct {
	counter WindowCounter
	rate    int
	window  time.Duration
	logger  *zap.Logger
}

func NewRateLimiter(counter WindowCounter, requestsPerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		rate:    requestsPerWindow,
		window:  window,
		logger:  zap.L().With(zap.String("component", "RateLimiter")),
	}
}

// Middleware short-circuits over-budget clients with 429 before any
// validation work runs
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, err := rl.allow(c.Request.Context(), clientIP)
		if err != nil {
			// Counter unavailable, let the request through rather
			// than refusing service
			rl.logger.Warn("Rate limit counter error", zap.Error(err), zap.String("ip", clientIP))
			c.Next()
			return
		}

		if !allowed {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", clientIP),
				zap.String("path", c.Request.URL.Path),
			)
			metrics.RateLimitedTotal.Inc()

			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.rate))
			c.Header("X-RateLimit-Window", rl.window.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": rl.window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, clientIP string) (bool, error) {
	count, err := rl.counter.Incr(ctx, "ratelimit:create:"+clientIP, rl.window)
	if err != nil {
		return false, err
	}
	return count <= int64(rl.rate), nil
}
