package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // 注册 GIF 解码器
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器
)

// recompressJPEG 将任意已注册格式的图像按指定质量重编码为 JPEG。
// quality 取值 0-100，越大质量越高。
func recompressJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图像失败: %w", err)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG 编码失败: %w", err)
	}
	return out.Bytes(), nil
}
