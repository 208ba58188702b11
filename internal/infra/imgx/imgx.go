package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // 注册 GIF 解码器（扫描件偶尔是 gif）
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器
	_ "golang.org/x/image/tiff" // 注册 TIFF 解码器（扫描仪常见输出）
	_ "golang.org/x/image/webp" // 注册 WebP 解码器

	"github.com/John-Robertt/qrforge/internal/domain"
)

// DefaultJPEGQuality 与浏览器 canvas.toBlob(..., 1.0) 保持一致。
const DefaultJPEGQuality = 100

// MaxInputPixels 限制单张输入图片的像素数，避免异常大图耗尽内存。
const MaxInputPixels = 64 << 20

// DecodePixels 把图片文件字节解码为 RGBA 像素（非预乘前的颜色在此阶段已被 draw 规范化）。
//
// 约束：
// - 输入格式由已注册的解码器决定（png/jpeg/gif/bmp/tiff/webp）
// - 返回的 pix 长度固定为 4*w*h，行间无填充
func DecodePixels(data []byte) (pix []byte, w, h int, err error) {
	if len(data) == 0 {
		return nil, 0, 0, errors.New("图片为空")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, 0, 0, errors.New("图片尺寸无效")
	}
	if cfg.Width > MaxInputPixels/cfg.Height {
		return nil, 0, 0, fmt.Errorf("图片过大：%dx%d", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst.Pix, b.Dx(), b.Dy(), nil
}

// Encode 把渲染结果编码为 PNG 或 JPEG。
func Encode(img image.Image, f domain.Format, jpegQuality int) ([]byte, error) {
	var out bytes.Buffer
	switch f {
	case domain.FormatPNG:
		if err := png.Encode(&out, img); err != nil {
			return nil, err
		}
	case domain.FormatJPEG:
		q := jpegQuality
		if q <= 0 {
			q = DefaultJPEGQuality
		}
		if q > 100 {
			q = 100
		}
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("不支持的光栅格式：%q", string(f))
	}
	return out.Bytes(), nil
}
