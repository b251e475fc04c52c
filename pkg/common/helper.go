package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"zanowatcher.com/pkg/logger"
)

// Response is the envelope Intake HTTP handlers use for error responses;
// successful responses use each route's own body shape.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailLogged writes an error response and logs it with the request id and
// method/path so an operator can correlate a client-visible failure with
// the server-side log line.
func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Warn(c.Request.Context(), "http error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
	)
	Fail(c, httpStatus, code, msg)
}
