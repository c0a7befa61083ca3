// Package pipeline 实现上传的共享后处理管道。
//
// 整体上传与分片重组后的上传走完全相同的路径：扩展名校验、命名、
// 可选压缩、元数据记录、可选隐形别名、对象存储写入、响应 URL 构造、
// 外部通知。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"uphub-go/internal/config"
	"uphub-go/internal/model"
	"uphub-go/internal/naming"
	"uphub-go/internal/repository"
	"uphub-go/pkg/kafka"
	"uphub-go/pkg/log"
	"uphub-go/pkg/token"
	"uphub-go/pkg/webhook"
)

// ErrExtensionDisabled 表示文件扩展名命中了全局禁用列表。
var ErrExtensionDisabled = errors.New("文件扩展名已被禁用")

// BlobStore 是管道对对象存储的最小依赖。
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) error
}

// Notifier 是管道对外部通知投递方的最小依赖，失败不影响上传结果。
type Notifier interface {
	Notify(ctx context.Context, p webhook.Payload) error
}

// EventPublisher 把上传完成事件发布到事件总线，失败不影响上传结果。
type EventPublisher func(ctx context.Context, event kafka.UploadEvent) error

// Options 携带单次摄取的全部可选项，由 HTTP 层在校验后填充。
type Options struct {
	Format naming.Format
	// CompressionQuality 为 nil 表示不压缩；仅对 image/* 生效。
	CompressionQuality *int
	ExpiresAt          *time.Time
	MaxViews           *int
	// PasswordHash 是访问口令的 bcrypt 哈希，空表示无口令。
	PasswordHash string
	Embed        bool
	// Invisible 为 true 时生成隐形别名并在 URL 中使用别名。
	Invisible bool
}

// Input 是一次摄取的完整输入：已知的全部字节加上请求上下文。
type Input struct {
	Data         []byte
	OriginalName string
	Mimetype     string
	User         *model.User
	Options      Options
	// RequestScheme/RequestHost 在用户未配置自定义域名时用于构造 URL。
	RequestScheme string
	RequestHost   string
}

// Result 是摄取成功的产出。
type Result struct {
	StoredName string
	Record     *model.FileRecord
	Alias      string
	URL        string
}

// Ingestor 持有摄取管道的全部协作方。
type Ingestor struct {
	files     repository.FileRepository
	blob      BlobStore
	notifier  Notifier
	publish   EventPublisher
	uploadCfg config.UploadConfig
	disabled  map[string]struct{}
}

// NewIngestor 创建摄取管道。notifier 与 publish 允许为 nil（不通知）。
func NewIngestor(files repository.FileRepository, blob BlobStore, notifier Notifier,
	publish EventPublisher, uploadCfg config.UploadConfig) *Ingestor {
	return &Ingestor{
		files:     files,
		blob:      blob,
		notifier:  notifier,
		publish:   publish,
		uploadCfg: uploadCfg,
		disabled:  uploadCfg.DisabledExtensionSet(),
	}
}

// Ingest 把一段完整已知的字节变为可访问的文件。
// 元数据记录创建成功即视为上传存在；其后的对象存储写入失败会留下
// 无字节的孤儿记录，这一不一致按设计保留并记录错误日志。
func (ig *Ingestor) Ingest(ctx context.Context, in Input) (*Result, error) {
	// 1. 扩展名提取与禁用校验
	ext := extractExtension(in.OriginalName)
	if _, bad := ig.disabled[strings.ToLower(ext)]; bad {
		return nil, fmt.Errorf("%w: %s", ErrExtensionDisabled, ext)
	}

	// 2. 压缩判定先于命名：压缩时扩展名固定为 jpg
	mimetype := in.Mimetype
	quality := in.Options.CompressionQuality
	compress := quality != nil && strings.HasPrefix(mimetype, "image/")
	if compress {
		ext = "jpg"
	}

	stem := naming.Generate(in.Options.Format, in.OriginalName,
		ig.uploadCfg.RandomLength, ig.uploadCfg.DatePattern)
	storedName := stem + "." + ext

	// 3. 可选压缩
	data := in.Data
	originalSize := int64(len(in.Data))
	if compress {
		recompressed, err := recompressJPEG(in.Data, *quality)
		if err != nil {
			return nil, fmt.Errorf("图像重压缩失败: %w", err)
		}
		data = recompressed
		mimetype = "image/jpeg"
	}

	// 4. 创建文件记录（持久化点）
	record := &model.FileRecord{
		Name:         storedName,
		Mimetype:     mimetype,
		UserID:       in.User.ID,
		Embed:        in.Options.Embed,
		Format:       in.Options.Format.String(),
		PasswordHash: in.Options.PasswordHash,
		ExpiresAt:    in.Options.ExpiresAt,
		MaxViews:     in.Options.MaxViews,
		Size:         int64(len(data)),
	}
	if err := ig.files.CreateRecord(record); err != nil {
		return nil, fmt.Errorf("创建文件记录失败: %w", err)
	}

	// 5. 可选隐形别名，与随机命名使用同一长度约定
	var alias string
	if in.Options.Invisible {
		alias = token.GenerateRandomString(ig.uploadCfg.RandomLength)
		if err := ig.files.CreateAlias(&model.InvisibleAlias{
			Alias:        alias,
			FileRecordID: record.ID,
		}); err != nil {
			return nil, fmt.Errorf("创建隐形别名失败: %w", err)
		}
	}

	// 6. 写入对象存储。失败时记录已存在（孤儿记录风险，按设计不回滚）
	if err := ig.blob.Save(ctx, storedName, data, mimetype); err != nil {
		log.Errorf("对象存储写入失败，记录 %s (id=%d) 成为孤儿: %v", storedName, record.ID, err)
		return nil, fmt.Errorf("对象存储写入失败: %w", err)
	}

	// 7. 观测日志
	if compress {
		log.Infow("文件摄取完成（已压缩）",
			"user", in.User.Username,
			"name", storedName,
			"originalSize", originalSize,
			"compressedSize", int64(len(data)),
			"quality", *quality,
		)
	} else {
		log.Infow("文件摄取完成",
			"user", in.User.Username,
			"name", storedName,
			"size", int64(len(data)),
		)
	}

	// 8. 构造响应 URL
	urlName := storedName
	if alias != "" {
		urlName = alias
	}
	fileURL := ig.buildURL(in, urlName)

	// 9. 外部通知与事件发布，均不影响上传结果
	if ig.notifier != nil {
		if err := ig.notifier.Notify(ctx, webhook.Payload{
			Username: in.User.Username,
			FileName: storedName,
			URL:      fileURL,
			Size:     record.Size,
			Mimetype: mimetype,
		}); err != nil {
			log.Warnf("上传通知投递失败: %v", err)
		}
	}
	if ig.publish != nil {
		if err := ig.publish(ctx, kafka.UploadEvent{
			UserID:   in.User.ID,
			FileName: storedName,
			URL:      fileURL,
			Size:     record.Size,
			Mimetype: mimetype,
		}); err != nil {
			log.Warnf("上传事件发布失败: %v", err)
		}
	}

	return &Result{
		StoredName: storedName,
		Record:     record,
		Alias:      alias,
		URL:        fileURL,
	}, nil
}

// buildURL 构造最终响应 URL：用户配置了自定义域名时随机选取其一作为
// 主机，否则回退到请求的 scheme/host；路径为挂载前缀加对象名或别名。
func (ig *Ingestor) buildURL(in Input, name string) string {
	route := strings.Trim(ig.uploadCfg.Route, "/")

	domains := in.User.DomainList()
	if len(domains) > 0 {
		domain := domains[rand.Intn(len(domains))]
		if !strings.Contains(domain, "://") {
			domain = "https://" + domain
		}
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(domain, "/"), route, name)
	}

	scheme := in.RequestScheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, in.RequestHost, route, name)
}

// extractExtension 取最后一个点号之后的部分；不含点号时整个名字视为扩展名。
func extractExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}
