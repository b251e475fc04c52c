package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"
)

func New() string { return uuid.NewString() }

// RequestIDFromGin returns the request id stashed in gin context by ReqId, or "".
func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
