// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"
	"uphub-go/internal/service"
	"uphub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责管理员专用的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 分页列出全部用户。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	resp, err := h.adminService.ListUsers(page, pageSize)
	if err != nil {
		log.Error("ListUsers: 查询用户列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户列表失败"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
