package ratelimit

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "fintrek/internal/errors"
)

// KeyFunc identifies the caller a rule counts against.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByUser counts requests per authenticated user, falling back to the client
// address for anonymous requests.
func ByUser(c *gin.Context) string {
	if id, ok := c.Get("userID"); ok {
		if s, ok := id.(string); ok && s != "" {
			return "user:" + s
		}
	}
	return ByClientIP(c)
}

// Rule is a named limit applied to a group of routes.
type Rule struct {
	Scope  string
	Limit  int
	Window time.Duration
	Key    KeyFunc
}

// Middleware enforces rule with l. Rejected requests get a RATE_LIMITED
// error with Retry-After. A limiter failure lets the request through.
func Middleware(l Limiter, rule Rule, log *zap.SugaredLogger) gin.HandlerFunc {
	keyFn := rule.Key
	if keyFn == nil {
		keyFn = ByClientIP
	}

	return func(c *gin.Context) {
		if rule.Limit <= 0 {
			c.Next()
			return
		}

		key := rule.Scope + ":" + keyFn(c)
		res, err := l.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warnw("rate limiter unavailable, allowing request",
				"scope", rule.Scope,
				"error", err,
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			log.Warnw("rate limit exceeded",
				"scope", rule.Scope,
				"key", key,
				"retry_after", res.RetryAfter,
			)
			_ = c.Error(apperrors.WithRetryAfter(apperrors.ErrRateLimited, res.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}
