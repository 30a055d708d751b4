package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"learnhub-backend/pkg/database"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/response"
)

// BlockedRecorder counts rejected requests
type BlockedRecorder interface {
	RecordRateLimitBlocked(endpoint string)
}

// RateLimiter implements a Redis fixed-window counter per client IP.
// It fails open when Redis is disabled or degraded.
type RateLimiter struct {
	db       *database.RedisDB
	requests int
	window   time.Duration
	recorder BlockedRecorder
	exempt   map[string]bool
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
// requests: maximum number of requests allowed
// window: time window for the rate limit (e.g., 1 minute)
func NewRateLimiter(db *database.RedisDB, requests int, window time.Duration, recorder BlockedRecorder) *RateLimiter {
	return &RateLimiter{
		db:       db,
		requests: requests,
		window:   window,
		recorder: recorder,
		exempt:   make(map[string]bool),
		now:      time.Now,
	}
}

// Exempt skips limiting for the given route patterns (as in c.FullPath)
func (rl *RateLimiter) Exempt(routes ...string) *RateLimiter {
	for _, route := range routes {
		rl.exempt[route] = true
	}
	return rl
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.requests <= 0 || rl.window <= 0 || rl.exempt[c.FullPath()] {
			c.Next()
			return
		}

		allowed, remaining, resetAt, err := rl.check(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Fail-open: Redis trouble must not take the API down
			if !rl.db.IsDegraded() {
				logger.FromContext(c.Request.Context()).Warn("Rate limit check failed", zap.Error(err))
			}
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			if rl.recorder != nil {
				rl.recorder.RecordRateLimitBlocked(c.FullPath())
			}
			response.FromError(c, apperrors.RateLimitExceededError())
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, clientIP string) (bool, int, int64, error) {
	windowStart := rl.now().Truncate(rl.window)
	key := fmt.Sprintf("ratelimit:ip:%s:%d", clientIP, windowStart.Unix())

	count, err := rl.db.SafeIncr(ctx, key).Result()
	if err != nil {
		return false, 0, 0, err
	}
	if count == 1 {
		// First hit of the window owns the expiry
		if err := rl.db.SafeExpire(ctx, key, rl.window).Err(); err != nil {
			return false, 0, 0, err
		}
	}

	remaining := rl.requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := windowStart.Add(rl.window).Unix()
	return count <= int64(rl.requests), remaining, resetAt, nil
}
