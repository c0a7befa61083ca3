package chunk

import (
	"fmt"
	"uphub-go/pkg/log"
)

// Reassemble 把属于指定上传标识的全部分片按声明偏移拼接为完整缓冲区，
// 并在拷贝完成后删除分片文件。
//
// 各分片写入互不重叠的声明区间，拷贝顺序无关紧要。缺失的区间保持零值
// 并记录告警（不报错）：完整性由客户端声明的区间保证，服务端只做观测。
// 声明区间越出 [0, declaredTotal) 的分片说明键已损坏，直接报错。
func (s *Store) Reassemble(identifier string, declaredTotal int64) ([]byte, error) {
	if declaredTotal < 0 {
		return nil, fmt.Errorf("非法的声明总大小: %d", declaredTotal)
	}

	descs, err := s.List(identifier)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, declaredTotal)
	var covered int64
	for _, desc := range descs {
		data, err := s.Read(desc)
		if err != nil {
			return nil, err
		}
		if desc.Start < 0 || desc.Start+int64(len(data)) > declaredTotal {
			return nil, fmt.Errorf("分片区间 %d-%d 超出声明总大小 %d", desc.Start, desc.End, declaredTotal)
		}
		copy(buf[desc.Start:], data)
		covered += int64(len(data))

		if err := s.Remove(desc); err != nil {
			// 删除失败不影响重组结果，残留文件交给定期清理
			log.Warnf("删除已合并分片失败: %s, err=%v", desc.Path, err)
		}
	}

	if covered < declaredTotal {
		log.Warnf("分片覆盖不完整: identifier=%s, 已覆盖 %d/%d 字节，缺口以零值填充",
			identifier, covered, declaredTotal)
	}
	return buf, nil
}
