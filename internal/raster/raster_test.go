package raster

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
)

func graphic(t *testing.T, mutate func(*domain.Settings)) compose.Graphic {
	t.Helper()
	s := domain.DefaultSettings()
	s.GlobalCaption = "Batch-"
	if mutate != nil {
		mutate(&s)
	}
	rec := domain.Record{Payload: "https://verify.test/p?code=AB12CD99", Token: "AB12CD", Suffix: "7"}
	return compose.New(nil).Compose(rec, s)
}

func at(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

// rasterize 把池化画布拷贝成独立位图，便于在 Render 返回后检查像素。
func rasterize(g compose.Graphic) (*image.RGBA, error) {
	var out *image.RGBA
	err := Render(g, func(img *image.RGBA) error {
		out = image.NewRGBA(img.Rect)
		copy(out.Pix, img.Pix)
		return nil
	})
	return out, err
}

func TestRender_SizeMatchesGraphic(t *testing.T) {
	g := graphic(t, nil)
	img, err := rasterize(g)
	if err != nil {
		t.Fatalf("光栅化失败：%v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 321 {
		t.Fatalf("画布尺寸必须等于 Graphic 声明的尺寸：%v", img.Bounds())
	}
}

func TestRender_FractionalHeightRoundsUp(t *testing.T) {
	g := graphic(t, func(s *domain.Settings) { s.Caption.FontSize = 15.5 })
	w, h := Size(g)
	if w != 256 || float64(h) < g.Height || float64(h)-g.Height >= 1 {
		t.Fatalf("尺寸应向上取整：graphic=%v 实际=%dx%d", g.Height, w, h)
	}
}

func TestRender_Pixels(t *testing.T) {
	g := graphic(t, func(s *domain.Settings) { s.BgColor = "#ff0000" })
	img, err := rasterize(g)
	if err != nil {
		t.Fatalf("光栅化失败：%v", err)
	}

	// 无静区：左上角是定位图形的深色模块。
	if c := at(img, 2, 2); c != (color.RGBA{0, 0, 0, 255}) {
		t.Fatalf("左上角应为前景色，实际 %v", c)
	}
	// 底部左侧空白区是背景色。
	if c := at(img, 1, img.Bounds().Dy()-1); c != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("底部应为背景色，实际 %v", c)
	}

	// code 行（y=290 附近）必须有文字像素。
	inked := false
	for x := 0; x < 256 && !inked; x++ {
		for y := 282; y < 292; y++ {
			if c := at(img, x, y); c.G < 128 && c.R < 128 {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Fatalf("code 行没有绘制任何文字")
	}

	// 分隔线中心（y=295）在 x=128 处应为线条颜色。
	if c := at(img, 128, 295); c.R > 64 {
		t.Fatalf("分隔线未绘制：%v", c)
	}
	// 分隔线宽度 80%：x=5 处不应有线条。
	if c := at(img, 5, 295); c != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("分隔线超出了配置宽度：%v", c)
	}
}

func TestRender_PropagatesCallbackError(t *testing.T) {
	g := graphic(t, nil)
	want := errors.New("encode failed")
	err := Render(g, func(img *image.RGBA) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("期望透传回调错误，实际 %v", err)
	}

	// 画布归还后可以再次使用，且不会带出上次的内容。
	g2 := graphic(t, func(s *domain.Settings) { s.BgColor = "#00ff00" })
	img, err := rasterize(g2)
	if err != nil {
		t.Fatalf("光栅化失败：%v", err)
	}
	if c := at(img, 1, img.Bounds().Dy()-1); c != (color.RGBA{0, 255, 0, 255}) {
		t.Fatalf("复用画布后背景不对：%v", c)
	}
}

func TestRender_RejectsEmptyCanvas(t *testing.T) {
	err := Render(compose.Graphic{}, func(*image.RGBA) error { return nil })
	if err == nil {
		t.Fatalf("零尺寸画布应报错")
	}
}

func TestRender_RejectsHugeCanvasWithoutOverflow(t *testing.T) {
	// 单边都不超过 int 范围，但乘积会溢出到负数或小正数。
	g := compose.Graphic{Width: 1 << 31, Height: 1 << 33, Background: "#ffffff"}
	called := false
	err := Render(g, func(*image.RGBA) error { called = true; return nil })
	if err == nil || called {
		t.Fatalf("超大画布必须在分配前被拒绝：err=%v called=%v", err, called)
	}

	for _, bad := range []compose.Graphic{
		{Width: math.NaN(), Height: 10},
		{Width: 10, Height: math.Inf(1)},
		{Width: MaxPixels, Height: 2},
	} {
		if err := Render(bad, func(*image.RGBA) error { return nil }); err == nil {
			t.Fatalf("非法尺寸 %vx%v 应报错", bad.Width, bad.Height)
		}
	}
}

func TestRender_HugeSettingsPassValidationButFailRaster(t *testing.T) {
	s := domain.DefaultSettings()
	s.Size = 1 << 31
	s.Separator.Enabled = false
	s.GlobalCaption = ""
	// 无 caption 时高度 = size + code.gap + 1.5*code.fontSize，凑成 1<<33。
	s.Code.Gap = 1<<33 - (1 << 31) - 1.5*s.Code.FontSize
	if err := s.Validate(); err != nil {
		t.Fatalf("配置应通过校验：%v", err)
	}
	g := compose.New(nil).Compose(domain.Record{Payload: "x", Token: "N/A"}, s)
	if err := Render(g, func(*image.RGBA) error { return nil }); err == nil {
		t.Fatalf("超大画布应报错而不是 panic（%vx%v）", g.Width, g.Height)
	}
}

func TestBaseline_XHeightCenteredOnMiddle(t *testing.T) {
	m := font.Metrics{
		Ascent:  fixed.I(12),
		Descent: fixed.I(4),
		XHeight: fixed.I(6),
	}
	if got := baseline(fixed.I(100), m); got != fixed.I(103) {
		t.Fatalf("基线应在 middle 下方半个 x-height：%v", got)
	}

	// 缺少 x-height 时退回 em 框居中。
	m.XHeight = 0
	if got := baseline(fixed.I(100), m); got != fixed.I(104) {
		t.Fatalf("回退基线不对：%v", got)
	}
}

func TestRender_RejectsBadColor(t *testing.T) {
	g := graphic(t, nil)
	g.Background = "red"
	if _, err := rasterize(g); err == nil {
		t.Fatalf("非法颜色应报错")
	}
}

func TestIsMonospace(t *testing.T) {
	cases := map[string]bool{
		"Arial":          false,
		"Courier New":    true,
		"JetBrains Mono": true,
		"":               false,
	}
	for in, want := range cases {
		if got := isMonospace(in); got != want {
			t.Fatalf("isMonospace(%q)=%v，期望 %v", in, got, want)
		}
	}
}
