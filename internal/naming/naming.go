// Package naming 实现落盘文件名的命名策略。
package naming

import (
	"strings"
	"time"
	"uphub-go/pkg/token"

	"github.com/google/uuid"
)

// Format 是封闭的命名格式枚举。
type Format int

const (
	// FormatRandom 生成定长随机字母数字串，也是未知选择器的回退项。
	FormatRandom Format = iota
	// FormatDate 使用当前时间按配置布局格式化。
	FormatDate
	// FormatUUID 每次调用生成一个全新的 UUID。
	FormatUUID
	// FormatName 沿用原始文件名（剥离最后一段扩展名）。
	FormatName
)

// String 返回格式的标签表示，用于持久化到文件记录。
func (f Format) String() string {
	switch f {
	case FormatDate:
		return "DATE"
	case FormatUUID:
		return "UUID"
	case FormatName:
		return "NAME"
	default:
		return "RANDOM"
	}
}

// ParseFormat 把客户端提交的选择器解析为 Format。
// 大小写不敏感；未知或空的选择器显式回退到 FormatRandom。
func ParseFormat(s string) Format {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DATE":
		return FormatDate
	case "UUID":
		return FormatUUID
	case "NAME":
		return FormatName
	default:
		return FormatRandom
	}
}

// Generate 按指定格式生成不含扩展名的文件名主干。
// 纯函数（除随机数与时钟外无副作用），永远返回非空字符串。
func Generate(f Format, originalName string, randomLength int, datePattern string) string {
	switch f {
	case FormatDate:
		if datePattern == "" {
			datePattern = "2006-01-02_15-04-05"
		}
		return time.Now().Format(datePattern)
	case FormatUUID:
		return uuid.NewString()
	case FormatName:
		return stripExtension(originalName)
	default:
		return token.GenerateRandomString(randomLength)
	}
}

// stripExtension 去掉最后一个点号之后的扩展名段。
// 原始名不含点号时整体保留；剥离后为空（如 ".bashrc"）时退回原始名。
func stripExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		if name == "" {
			return token.GenerateRandomString(8)
		}
		return name
	}
	return name[:idx]
}
