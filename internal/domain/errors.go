package domain

import (
	"errors"
	"fmt"
)

const (
	ErrCodeDecodeFailed     = "decode_failed"
	ErrCodeConversionFailed = "conversion_failed"
	ErrCodeBundleFailed     = "bundle_failed"
	ErrCodeEmptyBatch       = "empty_batch"
	ErrCodeIOFailed         = "io_failed"
	ErrCodeTargetConflict   = "target_conflict"
	ErrCodeSettingsInvalid  = "settings_invalid"
	ErrCodeEditInvalid      = "edit_invalid"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeConfigMissing    = "config_missing_path"
)

// ErrEmptyBatch 表示在没有任何记录时请求导出（在任何工作开始前拒绝）。
var ErrEmptyBatch = errors.New("没有可导出的记录，请先导入 QR 图片")

// DecodeError 是单张图片的解码失败（可恢复：记录仍会创建，payload 为 FailureMarker）。
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s：无法识别 QR", e.Source)
	}
	return fmt.Sprintf("%s：无法识别 QR：%v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConversionError 是单条记录导出为某种格式时的失败。
type ConversionError struct {
	Position int
	Format   Format
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("第 %d 条转换为 %s 失败：%v", e.Position, e.Format, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// BundleError 表示打包被整体中止（任一条目失败即中止，不产出残缺归档）。
type BundleError struct {
	Format Format
	Err    error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("生成 %s 压缩包失败：%v", e.Format, e.Err)
}

func (e *BundleError) Unwrap() error { return e.Err }

// IndexError 表示按下标访问记录时越界。
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("记录下标越界：%d（共 %d 条）", e.Index, e.Len)
}

// ErrorCode 把 error 映射为报告中的 error_code。
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var (
		de *DecodeError
		ce *ConversionError
		be *BundleError
		se *SettingsError
		ie *IndexError
	)
	switch {
	case errors.Is(err, ErrEmptyBatch):
		return ErrCodeEmptyBatch
	case errors.As(err, &be):
		return ErrCodeBundleFailed
	case errors.As(err, &ce):
		return ErrCodeConversionFailed
	case errors.As(err, &de):
		return ErrCodeDecodeFailed
	case errors.As(err, &se):
		return ErrCodeSettingsInvalid
	case errors.As(err, &ie):
		return ErrCodeEditInvalid
	default:
		return ErrCodeIOFailed
	}
}
