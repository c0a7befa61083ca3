// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"uphub-go/internal/chunk"
	"uphub-go/internal/config"
	"uphub-go/internal/model"
	"uphub-go/internal/naming"
	"uphub-go/internal/pipeline"
	"uphub-go/internal/repository"
	"uphub-go/internal/service"
	"uphub-go/pkg/expiry"
	"uphub-go/pkg/hash"
	"uphub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理所有与文件上传相关的 API 请求。
type UploadHandler struct {
	ingestor    *pipeline.Ingestor
	chunks      *chunk.Store
	rateLimiter service.RateLimitService
	locker      repository.MergeLocker
	uploadCfg   config.UploadConfig
	maxFileSize int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(ingestor *pipeline.Ingestor, chunks *chunk.Store,
	rateLimiter service.RateLimitService, locker repository.MergeLocker,
	uploadCfg config.UploadConfig) *UploadHandler {
	maxSize, _ := uploadCfg.MaxFileSizeBytes()
	return &UploadHandler{
		ingestor:    ingestor,
		chunks:      chunks,
		rateLimiter: rateLimiter,
		locker:      locker,
		uploadCfg:   uploadCfg,
		maxFileSize: maxSize,
	}
}

// Upload 处理上传请求。请求携带 Content-Range 时按分片处理，
// 否则按整体文件批量处理。冷却门控在入口统一执行。
func (h *UploadHandler) Upload(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	allowed, remainingMs, err := h.rateLimiter.Check(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("Upload: 冷却检查失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        "上传过于频繁，请稍后再试",
			"remaining_ms": remainingMs,
		})
		return
	}

	contentRange := c.GetHeader("Content-Range")
	if contentRange == "" {
		contentRange = c.PostForm("content-range")
	}
	if contentRange != "" {
		h.handleChunk(c, user, contentRange)
		return
	}
	h.handleWhole(c, user)
}

// handleChunk 处理分片上传的单个请求。
// 中间分片只落盘后确认；最终分片触发重组并进入共享摄取管道。
func (h *UploadHandler) handleChunk(c *gin.Context, user *model.User, contentRange string) {
	start, end, total, err := parseContentRange(contentRange)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.maxFileSize > 0 && total > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件超出大小限制"})
		return
	}

	uploadID := c.GetHeader("X-Upload-Id")
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传标识"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未能获取上传的分片"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取分片内容失败"})
		return
	}

	// 客户端提供的标识在用户之间不保证唯一，统一并入用户命名空间
	scopedID := fmt.Sprintf("%d:%s", user.ID, uploadID)

	if err := h.chunks.Put(scopedID, start, end, data); err != nil {
		log.Error("handleChunk: 分片落盘失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "分片写入失败"})
		return
	}

	if !isTruthy(c.GetHeader("X-Last-Chunk")) {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	// 最终分片：先解析选项，再抢占合并锁，避免坏请求毁掉已有分片
	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	acquired, err := h.locker.AcquireMergeLock(c.Request.Context(), user.ID, uploadID)
	if err != nil {
		log.Error("handleChunk: 抢占合并锁失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{"error": "该上传正在合并中"})
		return
	}
	defer func() {
		if err := h.locker.ReleaseMergeLock(c.Request.Context(), user.ID, uploadID); err != nil {
			log.Warnf("handleChunk: 释放合并锁失败: %v", err)
		}
	}()

	buf, err := h.chunks.Reassemble(scopedID, total)
	if err != nil {
		log.Error("handleChunk: 分片重组失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "分片重组失败"})
		return
	}

	originalName := c.GetHeader("X-File-Name")
	if originalName == "" {
		originalName = "unnamed"
	}
	mimetype := c.GetHeader("X-File-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	if hasFlag(c, "uploadtext") {
		mimetype = "text/plain"
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), pipeline.Input{
		Data:          buf,
		OriginalName:  originalName,
		Mimetype:      mimetype,
		User:          user,
		Options:       opts,
		RequestScheme: requestScheme(c),
		RequestHost:   c.Request.Host,
	})
	if err != nil {
		h.writeIngestError(c, err)
		return
	}

	if err := h.rateLimiter.Arm(c.Request.Context(), user); err != nil {
		log.Warnf("handleChunk: 写入冷却失败: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"files": []string{result.URL}})
}

// handleWhole 处理携带一个或多个完整文件的批量上传。
// 批内文件顺序处理，每个文件独立走一遍摄取管道。
func (h *UploadHandler) handleWhole(c *gin.Context, user *model.User) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 multipart 请求"})
		return
	}

	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求未包含任何文件"})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("文件 %s 超出大小限制", fh.Filename)})
			return
		}

		data, err := readMultipartFile(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取上传文件失败"})
			return
		}

		mimetype := fh.Header.Get("Content-Type")
		if mimetype == "" {
			mimetype = "application/octet-stream"
		}
		if hasFlag(c, "uploadtext") {
			mimetype = "text/plain"
		}

		result, err := h.ingestor.Ingest(c.Request.Context(), pipeline.Input{
			Data:          data,
			OriginalName:  fh.Filename,
			Mimetype:      mimetype,
			User:          user,
			Options:       opts,
			RequestScheme: requestScheme(c),
			RequestHost:   c.Request.Host,
		})
		if err != nil {
			h.writeIngestError(c, err)
			return
		}
		urls = append(urls, result.URL)
	}

	if err := h.rateLimiter.Arm(c.Request.Context(), user); err != nil {
		log.Warnf("handleWhole: 写入冷却失败: %v", err)
	}

	resp := gin.H{"files": urls}
	if opts.ExpiresAt != nil {
		resp["expires_at"] = opts.ExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// parseOptions 解析并校验请求携带的全部上传选项。
// 任何一项非法都会使整个请求在写入任何数据之前终止。
func (h *UploadHandler) parseOptions(c *gin.Context) (pipeline.Options, error) {
	opts := pipeline.Options{
		Format:    naming.ParseFormat(c.PostForm("format")),
		Embed:     hasFlag(c, "embed"),
		Invisible: hasFlag(c, "zws"),
	}

	if raw := c.PostForm("compression"); raw != "" {
		quality, err := strconv.Atoi(raw)
		if err != nil || quality < 0 || quality > 100 {
			return opts, fmt.Errorf("压缩质量必须是 0-100 的整数")
		}
		opts.CompressionQuality = &quality
	}

	if raw := c.PostForm("expires-at"); raw != "" {
		at, err := expiry.Parse(raw, time.Now())
		if err != nil {
			return opts, err
		}
		opts.ExpiresAt = &at
	}

	if raw := c.PostForm("max-views"); raw != "" {
		views, err := strconv.Atoi(raw)
		if err != nil || views < 0 {
			return opts, fmt.Errorf("最大查看次数必须是非负整数")
		}
		opts.MaxViews = &views
	}

	if password := c.PostForm("password"); password != "" {
		hashed, err := hash.HashPassword(password)
		if err != nil {
			return opts, fmt.Errorf("口令处理失败")
		}
		opts.PasswordHash = hashed
	}

	return opts, nil
}

// writeIngestError 把摄取错误映射到对应的 HTTP 状态码。
func (h *UploadHandler) writeIngestError(c *gin.Context, err error) {
	if errors.Is(err, pipeline.ErrExtensionDisabled) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Error("Upload: 摄取失败", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "上传处理失败"})
}

// parseContentRange 解析 "bytes start-end/total" 形式的分片标记。
func parseContentRange(s string) (start, end, total int64, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "bytes ") {
		return 0, 0, 0, fmt.Errorf("无效的 Content-Range: %q", s)
	}
	rangePart, totalPart, found := strings.Cut(strings.TrimPrefix(s, "bytes "), "/")
	if !found {
		return 0, 0, 0, fmt.Errorf("无效的 Content-Range: %q", s)
	}
	startPart, endPart, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, 0, fmt.Errorf("无效的 Content-Range: %q", s)
	}

	if start, err = strconv.ParseInt(strings.TrimSpace(startPart), 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("无效的分片起始偏移: %q", startPart)
	}
	if end, err = strconv.ParseInt(strings.TrimSpace(endPart), 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("无效的分片结束偏移: %q", endPart)
	}
	if total, err = strconv.ParseInt(strings.TrimSpace(totalPart), 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("无效的声明总大小: %q", totalPart)
	}
	if start < 0 || end < start || total <= end {
		return 0, 0, 0, fmt.Errorf("非法的分片区间: %s", s)
	}
	return start, end, total, nil
}

// hasFlag 判断布尔型选项是否出现（以出现即生效的方式传递）。
func hasFlag(c *gin.Context, key string) bool {
	if _, ok := c.GetPostForm(key); ok {
		return true
	}
	return isTruthy(c.GetHeader("X-" + strings.ToUpper(key[:1]) + key[1:]))
}

// isTruthy 宽松解析布尔标记。
func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// requestScheme 推断请求使用的协议。
func requestScheme(c *gin.Context) string {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// readMultipartFile 读取单个 multipart 文件的全部内容。
func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
