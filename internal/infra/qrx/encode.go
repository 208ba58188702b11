package qrx

import (
	"fmt"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Level 是 QR 纠错等级。
type Level string

const (
	LevelL Level = "L"
	LevelM Level = "M"
	LevelQ Level = "Q"
	LevelH Level = "H"
)

func (l Level) recovery() (qrcode.RecoveryLevel, error) {
	switch l {
	case LevelL:
		return qrcode.Low, nil
	case LevelM:
		return qrcode.Medium, nil
	case LevelQ:
		return qrcode.High, nil
	case LevelH:
		return qrcode.Highest, nil
	default:
		return 0, fmt.Errorf("未知纠错等级：%q", string(l))
	}
}

// Encoder 把文本编码为指定边长、颜色的 QR 矢量符号。
type Encoder interface {
	Encode(text string, size float64, fg, bg string, level Level) (Symbol, error)
}

// GoQR 是基于 skip2/go-qrcode 的 Encoder 实现（无静区，padding=0）。
type GoQR struct{}

var _ Encoder = GoQR{}

func (GoQR) Encode(text string, size float64, fg, bg string, level Level) (Symbol, error) {
	return Encode(text, size, fg, bg, level)
}

// Encode 生成 QR 符号；失败时返回的 Symbol 仍然可用（空白符号，仅保留尺寸与颜色）。
func Encode(text string, size float64, fg, bg string, level Level) (Symbol, error) {
	blank := Symbol{Size: size, Fg: fg, Bg: bg}

	rl, err := level.recovery()
	if err != nil {
		return blank, err
	}
	q, err := qrcode.New(text, rl)
	if err != nil {
		return blank, err
	}
	q.DisableBorder = true

	bm := q.Bitmap()
	return Symbol{
		Size:    size,
		Modules: len(bm),
		Dark:    bm,
		Fg:      fg,
		Bg:      bg,
	}, nil
}

// Symbol 是一个已编码的 QR 符号（正方形，边长 Size，左上角位于原点）。
type Symbol struct {
	Size    float64
	Modules int
	Dark    [][]bool
	Fg      string
	Bg      string
}

// Run 是同一行内连续的深色模块（用户坐标）。
type Run struct {
	X, Y, W, H float64
}

// ModuleSize 返回单个模块边长；空白符号返回 0。
func (s Symbol) ModuleSize() float64 {
	if s.Modules == 0 {
		return 0
	}
	return s.Size / float64(s.Modules)
}

// Runs 按行扫描，把相邻的深色模块合并为横向矩形。
// SVG path 与光栅化都基于同一组 Run，保证两者几何一致。
func (s Symbol) Runs() []Run {
	ms := s.ModuleSize()
	if ms == 0 {
		return nil
	}
	out := make([]Run, 0, s.Modules*4)
	for y, row := range s.Dark {
		for x := 0; x < len(row); {
			if !row[x] {
				x++
				continue
			}
			start := x
			for x < len(row) && row[x] {
				x++
			}
			out = append(out, Run{
				X: float64(start) * ms,
				Y: float64(y) * ms,
				W: float64(x-start) * ms,
				H: ms,
			})
		}
	}
	return out
}

// PathData 返回 SVG path 的 d 属性（每个 Run 一个闭合矩形）。
func (s Symbol) PathData() string {
	runs := s.Runs()
	if len(runs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range runs {
		b.WriteByte('M')
		b.WriteString(Num(r.X))
		b.WriteByte(' ')
		b.WriteString(Num(r.Y))
		b.WriteByte('h')
		b.WriteString(Num(r.W))
		b.WriteByte('v')
		b.WriteString(Num(r.H))
		b.WriteString("h-")
		b.WriteString(Num(r.W))
		b.WriteByte('z')
	}
	return b.String()
}

// Num 以最短且可往返的十进制格式输出浮点数（确定性输出的基础）。
func Num(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
