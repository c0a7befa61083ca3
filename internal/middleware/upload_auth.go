// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"uphub-go/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UploadAuthMiddleware 创建上传接口专用的认证中间件。
// 上传客户端（如截图工具）携带的是不透明的上传令牌而非 JWT，
// 令牌直接映射到用户记录。
func UploadAuthMiddleware(userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "请求未包含上传令牌"})
			return
		}
		// 兼容带 Bearer 前缀的客户端
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		user, err := userRepo.FindByUploadToken(tokenString)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "无效的上传令牌"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}
