package compose

import (
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/qrx"
)

// ECLevel 固定为最高纠错等级（策略常量，不随 Settings 变化）。
const ECLevel = qrx.LevelH

// Text 是一行居中的文字标签。Y 是该行的垂直中心（dominant-baseline=middle）。
type Text struct {
	Content    string
	X, Y       float64
	FontFamily string
	FontSize   float64
	Color      string
	Bold       bool
	Italic     bool
}

// Rule 是 code 与 caption 之间的横向分隔线；Y 是线的中心。
type Rule struct {
	X1, X2    float64
	Y         float64
	Thickness float64
	Color     string
}

// Graphic 是一条记录的完整版面（纯数据），SVG 序列化与光栅化都从它出发。
type Graphic struct {
	Width      float64
	Height     float64
	Background string

	Symbol qrx.Symbol
	Code   Text

	Rule    *Rule // 未启用分隔线时为 nil
	Caption *Text // caption 为空时为 nil
}

// Composer 把 (Record, Settings) 排版为 Graphic。
type Composer struct {
	enc qrx.Encoder
}

// New 创建 Composer；enc 为 nil 时使用 go-qrcode。
func New(enc qrx.Encoder) *Composer {
	if enc == nil {
		enc = qrx.GoQR{}
	}
	return &Composer{enc: enc}
}

// Compose 是纯函数：同样的输入总是得到同样的 Graphic。
//
// 编码失败（例如 payload 过长）时符号为空白，标签照常排版。
func (c *Composer) Compose(rec domain.Record, s domain.Settings) Graphic {
	size := s.Size
	caption := domain.EffectiveCaption(rec, s)

	sym, _ := c.enc.Encode(rec.Payload, size, s.FgColor, s.BgColor, ECLevel)

	codeY := size + s.Code.Gap + s.Code.FontSize
	g := Graphic{
		Width:      size,
		Background: s.BgColor,
		Symbol:     sym,
		Code:       label(rec.Token, size/2, codeY, s.Code),
	}

	var captionY float64
	if s.Separator.Enabled {
		lineY := codeY + s.Caption.Gap/2
		w := size * s.Separator.WidthPercent / 100
		x1 := (size - w) / 2
		g.Rule = &Rule{
			X1:        x1,
			X2:        x1 + w,
			Y:         lineY,
			Thickness: s.Separator.Thickness,
			Color:     s.Separator.Color,
		}
		captionY = lineY + s.Separator.Thickness + s.Separator.GapBelow + s.Caption.FontSize/2
	} else {
		captionY = codeY + s.Caption.Gap + s.Caption.FontSize/2
	}

	if caption != "" {
		t := label(caption, size/2, captionY, s.Caption)
		g.Caption = &t
		g.Height = captionY + s.Caption.FontSize/2
	} else {
		g.Height = codeY + s.Code.FontSize/2
	}
	return g
}

func label(content string, x, y float64, st domain.LabelStyle) Text {
	return Text{
		Content:    content,
		X:          x,
		Y:          y,
		FontFamily: st.FontFamily,
		FontSize:   st.FontSize,
		Color:      st.Color,
		Bold:       st.Bold,
		Italic:     st.Italic,
	}
}
