// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"
	"uphub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 上传请求体是大块二进制数据，这里只记录元信息，不缓存请求/响应体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		// 处理请求
		c.Next()

		// 计算延迟
		latency := time.Since(startTime)

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestSize", c.Request.ContentLength,
			"responseSize", c.Writer.Size(),
		)
	}
}
