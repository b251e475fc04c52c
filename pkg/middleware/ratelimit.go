package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"zanowatcher.com/pkg/common"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/ratelimit"
)

type RateLimitConfig struct {
	Rate  rate.Limit
	Burst int
	TTL   time.Duration
}

// RateLimit rate-limits a route per client IP, independent of any other
// route's limiter (each key is "ip:route"). Used to gate the public status
// endpoint (spec: "rate-limited independently") without touching the
// secret-gated create/callback routes.
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			common.Fail(c, http.StatusTooManyRequests, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
