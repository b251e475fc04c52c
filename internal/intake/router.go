package intake

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"golang.org/x/time/rate"
	"zanowatcher.com/internal/config"
	"zanowatcher.com/pkg/common"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/middleware"
	"zanowatcher.com/pkg/ratelimit"
	"zanowatcher.com/pkg/xerr"
)

// apiKeyAuth gates the create route on a static shared secret, per §4.9.
func apiKeyAuth(cfg *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := cfg.Get().Intake.APIKey
		if key == "" {
			common.Fail(c, http.StatusServiceUnavailable, xerr.NotConfigured, "create endpoint not configured")
			c.Abort()
			return
		}
		if c.GetHeader(APIKeyHeader) != key {
			common.Fail(c, http.StatusUnauthorized, xerr.RequestParamsError, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// NewRouter wires the Intake HTTP surface the way the teacher's gateway
// wires its own routers: gin.New, Prometheus instrumentation, request-id,
// CORS, panic recovery, then an independent rate limiter scoped only to the
// public status route.
func NewRouter(ctx context.Context, cfg *config.Store, h *Handler) *http.Server {
	c := cfg.Get()

	limiterRate := 5.0
	if c.Intake.RateLimitPerSec > 0 {
		limiterRate = float64(c.Intake.RateLimitPerSec)
	}
	burst := 10
	if c.Intake.RateLimitBurst > 0 {
		burst = c.Intake.RateLimitBurst
	}
	store := ratelimit.NewStore(rate.Limit(limiterRate), burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)
	h.cache.startJanitor(ctx, time.Minute)

	r := gin.New()
	p := ginprom.NewPrometheus("deposits_watcher")
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)

	r.GET("/health", h.Health)

	api := r.Group("/api/transaction")
	api.POST("/create", apiKeyAuth(cfg), h.Create)
	api.GET("/status/:ticker/:paymentId", middleware.RateLimit(store), h.Status)
	api.POST("/callback/:ticker", h.Callback)

	logger.Info(ctx, "intake router assembled")

	return &http.Server{
		Addr:           c.Intake.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
