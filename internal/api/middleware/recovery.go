package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timetable/backend/pkg/response"
)

// Recovery panic 恢复中间件，记录 request_id 并返回统一错误响应
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("请求处理 panic",
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		response.InternalError(c)
		c.Abort()
	})
}
