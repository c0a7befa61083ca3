// Package expiry 解析客户端提交的过期时间表达式。
package expiry

import (
	"fmt"
	"strings"
	"time"
)

// Parse 将过期表达式解析为一个绝对时间点。
// 接受两种形式：
//   - RFC3339 时间戳，例如 "2026-09-01T12:00:00Z"
//   - Go duration（可带 "+" 前缀），例如 "24h"、"+30m"，表示相对当前时间
//
// 解析出的时间点必须在未来，否则返回错误。
func Parse(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("过期表达式为空")
	}

	var at time.Time
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		at = t
	} else {
		d, derr := time.ParseDuration(strings.TrimPrefix(expr, "+"))
		if derr != nil {
			return time.Time{}, fmt.Errorf("无法解析过期表达式 %q", expr)
		}
		at = now.Add(d)
	}

	if !at.After(now) {
		return time.Time{}, fmt.Errorf("过期时间 %s 不在未来", at.Format(time.RFC3339))
	}
	return at, nil
}
