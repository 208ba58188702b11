package domain

import (
	"fmt"
	"strings"
)

// Format 是单条导出的文件格式。
type Format string

const (
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
)

// ParseFormat 接受 svg/png/jpg（jpeg 视为 jpg），大小写不敏感。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "svg":
		return FormatSVG, nil
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("格式只能是 svg、png 或 jpg，实际是 %q", s)
	}
}

// Ext 返回不带点的扩展名。
func (f Format) Ext() string { return string(f) }

// IsRaster 表示是否需要光栅化。
func (f Format) IsRaster() bool { return f == FormatPNG || f == FormatJPEG }

// TableKind 是表格导出的目标格式。
type TableKind string

const (
	TableXLSX TableKind = "xlsx"
	TablePDF  TableKind = "pdf"
)

func ParseTableKind(s string) (TableKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xlsx", "excel":
		return TableXLSX, nil
	case "pdf":
		return TablePDF, nil
	default:
		return "", fmt.Errorf("表格格式只能是 xlsx 或 pdf，实际是 %q", s)
	}
}
