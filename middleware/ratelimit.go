package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	"github.com/tobylas-w/ThaiTable-sub000/metrics"
	"github.com/tobylas-w/ThaiTable-sub000/ratelimit"
)

// RateLimit limits each client IP per route. If the limiter itself fails
// the request is let through.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		res, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			metrics.RecordRateLimited(c.FullPath())
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			_ = c.Error(apperr.New(apperr.KindRateLimit, "RATE_LIMITED", "too many requests, please try again later"))
			c.Abort()
			return
		}
		c.Next()
	}
}
