// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"uphub-go/internal/model"
	"uphub-go/internal/service"
	"uphub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FileHandler 负责已上传文件的访问与生命周期 API。
type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Serve 处理文件访问请求，路径参数既可以是对象名也可以是隐形别名。
// 设有口令的文件通过 X-File-Password 请求头提交口令。
func (h *FileHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	password := c.GetHeader("X-File-Password")

	record, reader, err := h.fileService.Fetch(c.Request.Context(), name, password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound), errors.Is(err, service.ErrFileExpired):
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
		case errors.Is(err, service.ErrPasswordRequired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "需要访问口令"})
		case errors.Is(err, service.ErrWrongPassword):
			c.JSON(http.StatusForbidden, gin.H{"error": "访问口令错误"})
		default:
			log.Error("Serve: 获取文件失败", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		}
		return
	}
	defer reader.Close()

	if !record.Embed {
		c.Header("Content-Disposition", "inline; filename=\""+record.Name+"\"")
	}
	c.Header("Content-Type", record.Mimetype)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		log.Warnf("Serve: 传输文件内容中断: name=%s, err=%v", record.Name, err)
	}
}

// List 列出当前用户的全部文件记录。
func (h *FileHandler) List(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	records, err := h.fileService.ListByUser(user.ID)
	if err != nil {
		log.Error("List: 查询文件列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文件列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": records})
}

// Delete 删除文件，所有者与管理员可操作。
func (h *FileHandler) Delete(c *gin.Context) {
	user := c.MustGet("user").(*model.User)
	name := c.Param("name")

	if err := h.fileService.Delete(c.Request.Context(), name, user); err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "无权删除该文件"})
		default:
			log.Error("Delete: 删除文件失败", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文件失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
