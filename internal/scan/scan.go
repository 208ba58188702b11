package scan

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// ScanImages 列出 root 下可解码的图片，按 RelPath 排序，即批次的提交顺序。
//
// 跳过：outDir 与 excludeDirs 所在子树（相对路径按 root 解析）、以 "." 开头的条目、
// 非图片扩展名。只 stat，不读内容。
func ScanImages(root, outDir string, excludeDirs []string) ([]domain.ImageFile, error) {
	root = filepath.Clean(root)
	p := newPruner(root, append([]string{outDir}, excludeDirs...))

	var files []domain.ImageFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p.pruned(path, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if d.IsDir() || !IsImageExt(ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.ImageFile{
			AbsPath: path,
			RelPath: rel,
			Ext:     ext,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b domain.ImageFile) int { return strings.Compare(a.RelPath, b.RelPath) })
	return files, nil
}

// IsImageExt 判断扩展名（小写、带点）是否为支持解码的图片格式。
func IsImageExt(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	default:
		return false
	}
}

// pruner 决定遍历时哪些条目整棵跳过。
type pruner struct {
	root string
	dirs []string
}

func newPruner(root string, dirs []string) pruner {
	p := pruner{root: root}
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !filepath.IsAbs(d) {
			d = filepath.Join(root, d)
		}
		p.dirs = append(p.dirs, filepath.Clean(d))
	}
	return p
}

// pruned 对隐藏条目（root 本身除外）和位于排除目录之内的路径返回 true。
func (p pruner) pruned(path, name string) bool {
	if path != p.root && strings.HasPrefix(name, ".") {
		return true
	}
	path = filepath.Clean(path)
	return slices.ContainsFunc(p.dirs, func(dir string) bool {
		rel, err := filepath.Rel(dir, path)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	})
}
