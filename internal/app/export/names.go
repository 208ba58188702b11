package export

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/qrforge/internal/domain"
)

const (
	SheetFileName = "qr_code_data.xlsx"
	PDFFileName   = "qr_code_data.pdf"
)

// FileName 返回单条产物的文件名：{token}_{position}.{ext}。
//
// position 总是追加，所以 token 重复也不会冲突。
func FileName(token string, position int, f domain.Format) string {
	return SanitizeToken(token) + "_" + strconv.Itoa(position) + "." + f.Ext()
}

// BundleName 返回压缩包文件名，例如 Enhanced_QRs_PNG.zip。
func BundleName(f domain.Format) string {
	return "Enhanced_QRs_" + strings.ToUpper(f.Ext()) + ".zip"
}

// TableFileName 返回表格导出的文件名。
func TableFileName(k domain.TableKind) string {
	if k == domain.TablePDF {
		return PDFFileName
	}
	return SheetFileName
}

// SanitizeToken 把 token 中文件系统不允许的字符替换为 "_"；空 token 回退为 "qr"。
func SanitizeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "qr"
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, token)
}
