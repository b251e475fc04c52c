package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"zanowatcher.com/pkg/common"
	"zanowatcher.com/pkg/logger"
)

// ReqId assigns a request id (from the incoming header, or freshly
// generated) and stashes it both in gin context and in the request's
// context.Context under logger.TraceIdKey, so every logger.* call made
// while handling the request carries a trace_id automatically.
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		ctx := context.WithValue(c.Request.Context(), logger.TraceIdKey, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Header(common.HeaderRequestID, rid)
		c.Next()
	}
}
