package qrx

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"testing"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/John-Robertt/qrforge/internal/domain"
)

func TestDecode_RoundTrip(t *testing.T) {
	const payload = "https://verify.test/item?code=A1B2C3D4"

	b, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		t.Fatalf("生成测试 QR 失败：%v", err)
	}
	src, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png 失败：%v", err)
	}
	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	got, err := Decode(rgba.Pix, rgba.Rect.Dx(), rgba.Rect.Dy())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != payload {
		t.Fatalf("期望 %q，实际 %q", payload, got)
	}
}

func TestDecode_BlankImage_DecodeError(t *testing.T) {
	w, h := 64, 64
	px := bytes.Repeat([]byte{255, 255, 255, 255}, w*h)

	_, err := ZXing{}.Decode(px, w, h)
	var de *domain.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("期望 DecodeError，实际 %T %v", err, err)
	}
}

func TestDecode_BadBuffer_DecodeError(t *testing.T) {
	cases := []struct {
		px   []byte
		w, h int
	}{
		{make([]byte, 10), 4, 4},
		{nil, 0, 0},
		{make([]byte, 16), -1, 4},
	}
	for _, c := range cases {
		_, err := Decode(c.px, c.w, c.h)
		var de *domain.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("期望 DecodeError（%dx%d），实际 %v", c.w, c.h, err)
		}
	}
}

func TestEncode_RunsCoverDarkModules(t *testing.T) {
	s, err := Encode("hello", 210, "#000", "#fff", LevelH)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.Modules == 0 || len(s.Dark) != s.Modules {
		t.Fatalf("模块矩阵不完整：modules=%d rows=%d", s.Modules, len(s.Dark))
	}

	dark := 0
	for _, row := range s.Dark {
		for _, v := range row {
			if v {
				dark++
			}
		}
	}
	var covered float64
	for _, r := range s.Runs() {
		covered += r.W / s.ModuleSize()
		if r.X+r.W > s.Size+1e-9 || r.Y+r.H > s.Size+1e-9 {
			t.Fatalf("run 超出符号边界：%+v size=%v", r, s.Size)
		}
	}
	if int(covered+0.5) != dark {
		t.Fatalf("runs 覆盖的模块数 %v 与深色模块数 %d 不一致", covered, dark)
	}
}

func TestEncode_PathDataDeterministic(t *testing.T) {
	a, _ := Encode("same", 200, "#000", "#fff", LevelH)
	b, _ := Encode("same", 200, "#000", "#fff", LevelH)
	if a.PathData() != b.PathData() || a.PathData() == "" {
		t.Fatalf("相同输入必须得到相同且非空的 path")
	}
	if !strings.HasPrefix(a.PathData(), "M0 0h") {
		t.Fatalf("左上角定位图案应从原点开始：%q", a.PathData()[:16])
	}
}

func TestEncode_EmptyText_BlankSymbol(t *testing.T) {
	s, err := Encode("", 100, "#000", "#fff", LevelH)
	if err == nil {
		t.Fatalf("期望空文本编码失败")
	}
	if s.Size != 100 || s.Modules != 0 || s.PathData() != "" {
		t.Fatalf("失败时应返回空白符号：%+v", s)
	}
}

func TestEncode_UnknownLevel(t *testing.T) {
	if _, err := Encode("x", 100, "#000", "#fff", Level("Z")); err == nil {
		t.Fatalf("期望未知纠错等级报错")
	}
}

func TestNum(t *testing.T) {
	cases := map[float64]string{0: "0", 1: "1", 12.5: "12.5", -3: "-3"}
	for in, want := range cases {
		if got := Num(in); got != want {
			t.Fatalf("Num(%v)：期望 %q，实际 %q", in, want, got)
		}
	}
}
