// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"uphub-go/internal/model"
	"uphub-go/internal/service"
	"uphub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户注册、登录等 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了注册 API 的请求体结构。
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register 处理用户注册的请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	user, err := h.userService.Register(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"username":    user.Username,
		"uploadToken": user.UploadToken,
	})
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录的请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	accessToken, refreshToken, err := h.userService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
			return
		}
		log.Error("Login: 登录失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

// GetProfile 返回当前用户的信息，包含上传令牌。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"role":          user.Role,
		"uploadToken":   user.UploadToken,
		"customDomains": user.CustomDomains,
	})
}

// RegenerateToken 轮换当前用户的上传令牌。
func (h *UserHandler) RegenerateToken(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	newToken, err := h.userService.RegenerateUploadToken(user.Username)
	if err != nil {
		log.Error("RegenerateToken: 轮换上传令牌失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "轮换上传令牌失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploadToken": newToken})
}

// SetDomainsRequest 定义了更新自定义域名 API 的请求体结构。
type SetDomainsRequest struct {
	Domains string `json:"domains"`
}

// SetCustomDomains 更新当前用户的自定义域名列表。
func (h *UserHandler) SetCustomDomains(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	var req SetDomainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	if err := h.userService.SetCustomDomains(user.Username, req.Domains); err != nil {
		log.Error("SetCustomDomains: 更新自定义域名失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新自定义域名失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
