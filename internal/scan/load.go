package scan

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// MaxFileBytes 限制单个输入文件的大小。
const MaxFileBytes = 64 << 20

// Load 读取文件内容并计算摘要。单个文件读取失败不会中断整体：
// 该文件带着 Err 提交，由解码阶段记为失败，保持 position 与扫描顺序一致。
func Load(files []domain.ImageFile) []domain.SourceImage {
	out := make([]domain.SourceImage, len(files))
	for i, f := range files {
		out[i] = domain.SourceImage{Name: f.RelPath}
		if f.Size > MaxFileBytes {
			out[i].Err = fmt.Errorf("文件过大：%d 字节（上限 %d）", f.Size, MaxFileBytes)
			continue
		}
		b, err := os.ReadFile(f.AbsPath)
		if err != nil {
			out[i].Err = fmt.Errorf("读取文件失败：%w", err)
			continue
		}
		out[i].Data = b
		out[i].Hash = Hash(b)
	}
	return out
}

// Hash 返回内容的 blake3 摘要（hex，前 16 字节）。
func Hash(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// DuplicateWarnings 找出内容完全相同的输入，返回可读的警告文本。
func DuplicateWarnings(imgs []domain.SourceImage) []string {
	first := make(map[string]int, len(imgs))
	var warnings []string
	for i, img := range imgs {
		if img.Hash == "" {
			continue
		}
		if j, ok := first[img.Hash]; ok {
			warnings = append(warnings, fmt.Sprintf("输入重复：%s 与 %s 内容相同", img.Name, imgs[j].Name))
			continue
		}
		first[img.Hash] = i
	}
	return warnings
}
