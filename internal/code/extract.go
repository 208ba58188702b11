package code

import (
	"strings"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// MaxTokenLen 是 token 的最大字符数（按 rune 计）。
const MaxTokenLen = 6

// Extract 从解码得到的 payload 中提取短 token。
//
// 规则（启发式，不保证唯一，也不做任何校验）：
// - 按 '=' 切分；只有一段时返回 "N/A"
// - 否则取最后一段的前 6 个字符（任意字符，不限数字）
// - 解码失败的占位文本固定返回 "N/A"
func Extract(payload string) string {
	if payload == domain.FailureMarker {
		return domain.NoToken
	}
	i := strings.LastIndexByte(payload, '=')
	if i < 0 {
		return domain.NoToken
	}
	return truncateRunes(payload[i+1:], MaxTokenLen)
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
