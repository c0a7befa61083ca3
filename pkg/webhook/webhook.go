// Package webhook 负责把上传完成事件推送到外部回调地址。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"uphub-go/internal/config"

	"github.com/hashicorp/go-retryablehttp"
)

// Payload 是推送给回调地址的 JSON 载荷。
type Payload struct {
	Username string `json:"username"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

// Notifier 持有一个带重试的 HTTP 客户端。URL 为空时所有调用都是空操作。
type Notifier struct {
	url    string
	client *retryablehttp.Client
}

// NewNotifier 根据配置创建 Notifier。
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.Logger = nil // 重试日志交给调用方统一记录
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient.Timeout = timeout

	return &Notifier{url: cfg.URL, client: client}
}

// Notify 将载荷 POST 到配置的回调地址。
// 调用失败不影响上传结果，由调用方决定是否仅记录日志。
func (n *Notifier) Notify(ctx context.Context, p Payload) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回非预期状态码: %d", resp.StatusCode)
	}
	return nil
}
