package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/qrforge/internal/infra/fsx"
)

// DirName 是缓存目录名（位于 out/ 下；以 '.' 开头，扫描时会被跳过）。
const DirName = ".cache"

// Store 提供 <out>/.cache/ 下按图片内容摘要寻址的解码结果缓存。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - 只缓存解码成功的 payload；失败每次都重试
type Store struct {
	Root     string // <out>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(outDir string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(outDir)),
		ReadOnly: readOnly,
	}
}

type decodeEntry struct {
	Payload string `json:"payload"`
}

// DecodePath 返回某个内容摘要对应的缓存文件路径。
func (s Store) DecodePath(hash string) (string, error) {
	h, err := cleanHash(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, DirName, "decode", h+".json"), nil
}

// ReadDecode 读取缓存；不存在时返回 ok=false 且不报错。
func (s Store) ReadDecode(hash string) (string, bool, error) {
	path, err := s.DecodePath(hash)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var e decodeEntry
	if err := json.Unmarshal(b, &e); err != nil {
		// 损坏的缓存当作未命中，下一次写入会覆盖。
		return "", false, nil
	}
	return e.Payload, true, nil
}

func (s Store) WriteDecode(hash, payload string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	h, err := cleanHash(hash)
	if err != nil {
		return err
	}
	b, err := json.Marshal(decodeEntry{Payload: payload})
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Root, DirName, "decode"), h+".json", b)
}

var hashRE = regexp.MustCompile(`^[0-9a-f]{8,64}$`)

func cleanHash(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return "", fmt.Errorf("hash 不能为空")
	}
	// 摘要直接作为文件名，必须是 hex（避免路径穿越）。
	if !hashRE.MatchString(h) {
		return "", fmt.Errorf("非法 hash：%q", h)
	}
	return h, nil
}
