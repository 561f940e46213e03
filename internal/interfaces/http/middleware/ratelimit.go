package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "proposal-ai-api/pkg/errors"
	"proposal-ai-api/pkg/logger"
	"proposal-ai-api/pkg/metrics"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// KeyFunc 由用户与路由生成限流键
type KeyFunc func(userID, route string) string

// RateLimit 按用户与路由限流；限流器故障时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter, key KeyFunc) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		userID := GetUserIDFromGin(c)
		if userID == "" {
			userID = AnonymousUserID
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key(userID, route), cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			metrics.RateLimitRejections.WithLabelValues(route).Inc()
			abortWithAppError(c, apperrors.ErrTooManyRequests.WithDetail("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
