package domain

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// LabelStyle 描述一行文字标签（code / caption）的字体与间距。
type LabelStyle struct {
	FontFamily string  `yaml:"font_family" json:"font_family"`
	FontSize   float64 `yaml:"font_size" json:"font_size"`
	Color      string  `yaml:"color" json:"color"`
	Bold       bool    `yaml:"bold" json:"bold"`
	Italic     bool    `yaml:"italic" json:"italic"`
	// Gap 是该标签与上一段之间的间距：code 为 QR 下方间距，caption 为 code 下方间距。
	Gap float64 `yaml:"gap" json:"gap"`
}

// Separator 描述 code 与 caption 之间的可选分隔线。
type Separator struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Color        string  `yaml:"color" json:"color"`
	Thickness    float64 `yaml:"thickness" json:"thickness"`
	WidthPercent float64 `yaml:"width_percent" json:"width_percent"`
	// GapBelow 是分隔线底边到 caption 的间距。
	GapBelow float64 `yaml:"gap_below" json:"gap_below"`
}

// Settings 是一次渲染使用的完整样式配置。
//
// 约束：值语义；每次修改都整体替换，不做字段级原地修改。
type Settings struct {
	Size          float64 `yaml:"size" json:"size"`
	FgColor       string  `yaml:"fg_color" json:"fg_color"`
	BgColor       string  `yaml:"bg_color" json:"bg_color"`
	GlobalCaption string  `yaml:"global_caption" json:"global_caption"`

	Code      LabelStyle `yaml:"code" json:"code"`
	Caption   LabelStyle `yaml:"caption" json:"caption"`
	Separator Separator  `yaml:"separator" json:"separator"`
}

// Snapshot 是 Store 发布的带版本号的 Settings。
// Version 单调递增，便于上层判断“是否基于最新配置渲染”。
type Snapshot struct {
	Version  uint64
	Settings Settings
}

// DefaultSettings 返回内置默认样式。
func DefaultSettings() Settings {
	return Settings{
		Size:    256,
		FgColor: "#000000",
		BgColor: "#ffffff",
		Code: LabelStyle{
			FontFamily: "Arial",
			FontSize:   24,
			Color:      "#000000",
			Bold:       true,
			Gap:        10,
		},
		Caption: LabelStyle{
			FontFamily: "Arial",
			FontSize:   16,
			Color:      "#333333",
			Gap:        10,
		},
		Separator: Separator{
			Enabled:      true,
			Color:        "#000000",
			Thickness:    2,
			WidthPercent: 80,
			GapBelow:     8,
		},
	}
}

// SettingsError 指出 Settings 中不合法的字段。
type SettingsError struct {
	Field  string
	Reason string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("settings.%s 无效：%s", e.Field, e.Reason)
}

// Validate 校验数值范围与颜色格式。
func (s Settings) Validate() error {
	if !(s.Size > 0) {
		return &SettingsError{Field: "size", Reason: fmt.Sprintf("必须大于 0，实际 %v", s.Size)}
	}

	nonNeg := []struct {
		field string
		v     float64
	}{
		{"code.font_size", s.Code.FontSize},
		{"code.gap", s.Code.Gap},
		{"caption.font_size", s.Caption.FontSize},
		{"caption.gap", s.Caption.Gap},
		{"separator.thickness", s.Separator.Thickness},
		{"separator.width_percent", s.Separator.WidthPercent},
		{"separator.gap_below", s.Separator.GapBelow},
	}
	for _, n := range nonNeg {
		// NaN 也在这里被拒绝。
		if !(n.v >= 0) {
			return &SettingsError{Field: n.field, Reason: fmt.Sprintf("不能为负数，实际 %v", n.v)}
		}
	}
	if s.Separator.WidthPercent > 100 {
		return &SettingsError{Field: "separator.width_percent", Reason: fmt.Sprintf("不能超过 100，实际 %v", s.Separator.WidthPercent)}
	}

	colors := []struct {
		field string
		v     string
	}{
		{"fg_color", s.FgColor},
		{"bg_color", s.BgColor},
		{"code.color", s.Code.Color},
		{"caption.color", s.Caption.Color},
		{"separator.color", s.Separator.Color},
	}
	for _, c := range colors {
		if _, err := ParseColor(c.v); err != nil {
			return &SettingsError{Field: c.field, Reason: err.Error()}
		}
	}

	for _, f := range []struct{ field, v string }{
		{"code.font_family", s.Code.FontFamily},
		{"caption.font_family", s.Caption.FontFamily},
	} {
		if strings.TrimSpace(f.v) == "" {
			return &SettingsError{Field: f.field, Reason: "不能为空"}
		}
	}
	return nil
}

// ParseColor 解析 #rgb / #rrggbb 形式的颜色。
func ParseColor(s string) (colorful.Color, error) {
	c, err := colorful.Hex(strings.TrimSpace(s))
	if err != nil {
		return colorful.Color{}, fmt.Errorf("颜色必须是 #rgb 或 #rrggbb，实际 %q", s)
	}
	return c, nil
}
