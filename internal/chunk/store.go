// Package chunk 实现分片上传的临时落盘存储与重组。
//
// 无状态的 HTTP 请求之间不保留任何内存会话：同一逻辑上传的各个分片
// 仅通过上传标识在磁盘目录中关联，进程重启后未完成的分片仍然可用。
package chunk

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// partSuffix 是分片临时文件的统一后缀。
const partSuffix = ".part"

// Descriptor 描述一个已落盘的分片。Start/End 为声明的字节区间（End 含）。
type Descriptor struct {
	Identifier string
	Start      int64
	End        int64
	Path       string
}

// Store 是以 (上传标识, 字节区间) 为键的文件系统分片仓库。
// 不同区间的并发 Put 写入不同文件，互不干扰；相同键的写入直接覆盖。
type Store struct {
	dir string
}

// NewStore 创建分片仓库并确保目录存在。
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建分片目录失败: %w", err)
	}
	return &Store{dir: dir}, nil
}

// keyPrefix 把客户端提交的上传标识哈希为路径安全的前缀。
// 标识由客户端任意提供，不可直接用作文件名。
func keyPrefix(identifier string) string {
	sum := sha1.Sum([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// Put 将一个分片持久化到磁盘。磁盘写入失败视为该请求的致命错误，不重试。
func (s *Store) Put(identifier string, start, end int64, data []byte) error {
	name := fmt.Sprintf("%s_%d-%d%s", keyPrefix(identifier), start, end, partSuffix)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("写入分片 %s 失败: %w", name, err)
	}
	return nil
}

// List 枚举属于指定上传标识的全部分片，顺序不保证。
func (s *Store) List(identifier string) ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("读取分片目录失败: %w", err)
	}

	prefix := keyPrefix(identifier) + "_"
	var out []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, partSuffix) {
			continue
		}
		rangePart := strings.TrimSuffix(strings.TrimPrefix(name, prefix), partSuffix)
		start, end, ok := parseRange(rangePart)
		if !ok {
			// 无法解析的文件名不属于本仓库的键空间，跳过
			continue
		}
		out = append(out, Descriptor{
			Identifier: identifier,
			Start:      start,
			End:        end,
			Path:       filepath.Join(s.dir, name),
		})
	}
	return out, nil
}

// Remove 删除单个分片文件。
func (s *Store) Remove(desc Descriptor) error {
	return os.Remove(desc.Path)
}

// Read 读取单个分片的内容。
func (s *Store) Read(desc Descriptor) ([]byte, error) {
	data, err := os.ReadFile(desc.Path)
	if err != nil {
		return nil, fmt.Errorf("读取分片 %s 失败: %w", filepath.Base(desc.Path), err)
	}
	return data, nil
}

// SweepOlderThan 清理修改时间早于阈值的孤儿分片（崩溃或放弃的上传残留）。
// 返回删除的文件数。
func (s *Store) SweepOlderThan(age time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// parseRange 解析 "start-end" 形式的区间段。
func parseRange(s string) (int64, int64, bool) {
	dash := strings.IndexByte(s, '-')
	if dash <= 0 {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(s[:dash], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.ParseInt(s[dash+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}
