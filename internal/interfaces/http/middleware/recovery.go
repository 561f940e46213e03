package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"proposal-ai-api/pkg/errors"
	"proposal-ai-api/pkg/logger"
)

// Recovery Panic 恢复中间件；响应已开始写出（如 SSE）时只记录日志
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			appErr := errors.ErrInternalError
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"code":     appErr.Code,
				"message":  appErr.Message,
				"trace_id": c.GetString("trace_id"),
			})
		}()
		c.Next()
	}
}
