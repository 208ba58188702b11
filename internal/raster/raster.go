package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
)

// MaxPixels 限制单张画布的像素数，避免异常 Settings 导致巨量分配。
const MaxPixels = 64 << 20

var surfaces = sync.Pool{New: func() any { return new(image.RGBA) }}

func acquire(w, h int) *image.RGBA {
	img := surfaces.Get().(*image.RGBA)
	n := 4 * w * h
	if cap(img.Pix) < n {
		img.Pix = make([]uint8, n)
	}
	img.Pix = img.Pix[:n]
	img.Stride = 4 * w
	img.Rect = image.Rect(0, 0, w, h)
	return img
}

func release(img *image.RGBA) { surfaces.Put(img) }

// Size 返回 g 光栅化后的像素尺寸（向上取整）。
func Size(g compose.Graphic) (w, h int) {
	return int(math.Ceil(g.Width)), int(math.Ceil(g.Height))
}

// Render 把 g 绘制到一张临时画布上并交给 fn。
//
// 画布在 Render 返回前无条件归还，fn 不能保留 img 的引用。
func Render(g compose.Graphic, fn func(img *image.RGBA) error) error {
	// 先在浮点域排除 NaN/Inf 与超大边长，再用除法比较，避免 w*h 溢出。
	if !(g.Width > 0 && g.Height > 0) || g.Width > MaxPixels || g.Height > MaxPixels {
		return fmt.Errorf("画布尺寸无效：%gx%g", g.Width, g.Height)
	}
	w, h := Size(g)
	if w <= 0 || h <= 0 || w > MaxPixels/h {
		return fmt.Errorf("画布尺寸无效：%dx%d", w, h)
	}

	img := acquire(w, h)
	defer release(img)

	if err := paint(img, g); err != nil {
		return err
	}
	return fn(img)
}

func paint(img *image.RGBA, g compose.Graphic) error {
	bg, err := rgba(g.Background)
	if err != nil {
		return err
	}
	draw.Draw(img, img.Rect, image.NewUniform(bg), image.Point{}, draw.Src)

	sym := g.Symbol
	if sym.Size > 0 {
		symBg, err := rgba(sym.Bg)
		if err != nil {
			return err
		}
		fillRects(img, symBg, [][4]float64{{0, 0, sym.Size, sym.Size}})

		if runs := sym.Runs(); len(runs) > 0 {
			fg, err := rgba(sym.Fg)
			if err != nil {
				return err
			}
			rects := make([][4]float64, len(runs))
			for i, r := range runs {
				rects[i] = [4]float64{r.X, r.Y, r.W, r.H}
			}
			fillRects(img, fg, rects)
		}
	}

	if err := drawText(img, g.Code); err != nil {
		return err
	}
	if r := g.Rule; r != nil && r.Thickness > 0 && r.X2 > r.X1 {
		c, err := rgba(r.Color)
		if err != nil {
			return err
		}
		fillRects(img, c, [][4]float64{{r.X1, r.Y - r.Thickness/2, r.X2 - r.X1, r.Thickness}})
	}
	if g.Caption != nil {
		if err := drawText(img, *g.Caption); err != nil {
			return err
		}
	}
	return nil
}

// fillRects 把一组矩形 (x, y, w, h) 合成一条路径后一次性填充（抗锯齿）。
func fillRects(img *image.RGBA, c color.RGBA, rects [][4]float64) {
	b := img.Rect
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, r := range rects {
		x0, y0 := float32(r[0]), float32(r[1])
		x1, y1 := float32(r[0]+r[2]), float32(r[1]+r[3])
		z.MoveTo(x0, y0)
		z.LineTo(x1, y0)
		z.LineTo(x1, y1)
		z.LineTo(x0, y1)
		z.ClosePath()
	}
	z.Draw(img, b, image.NewUniform(c), image.Point{})
}

// drawText 以 (t.X, t.Y) 为锚点绘制一行文字，对应 SVG 的 text-anchor=middle 与
// dominant-baseline=middle：水平居中，x-height 的中线落在 t.Y 上。
func drawText(img *image.RGBA, t compose.Text) error {
	if t.Content == "" || t.FontSize <= 0 {
		return nil
	}
	c, err := rgba(t.Color)
	if err != nil {
		return err
	}
	face, err := newFace(t.FontFamily, t.FontSize, t.Bold, t.Italic)
	if err != nil {
		return err
	}
	defer face.Close()

	m := face.Metrics()
	adv := font.MeasureString(face, t.Content)

	x := fixed.Int26_6(math.Round(t.X*64)) - adv/2
	y := baseline(fixed.Int26_6(math.Round(t.Y*64)), m)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(t.Content)
	return nil
}

// baseline 返回让 x-height 中线对齐 middle 的基线位置。
// 字体缺少 x-height 时退回到 em 框居中。
func baseline(middle fixed.Int26_6, m font.Metrics) fixed.Int26_6 {
	if m.XHeight > 0 {
		return middle + m.XHeight/2
	}
	return middle + (m.Ascent-m.Descent)/2
}

func rgba(hex string) (color.RGBA, error) {
	c, err := domain.ParseColor(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
