package export

import (
	"fmt"
	"image"

	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/imgx"
	"github.com/John-Robertt/qrforge/internal/raster"
)

// Converter 把排版结果转换为某种文件格式的字节。
type Converter interface {
	Convert(g compose.Graphic, f domain.Format) ([]byte, error)
}

// DefaultConverter：svg 直接序列化；png/jpg 先光栅化再编码。
type DefaultConverter struct {
	JPEGQuality int
}

var _ Converter = DefaultConverter{}

func (c DefaultConverter) Convert(g compose.Graphic, f domain.Format) ([]byte, error) {
	switch f {
	case domain.FormatSVG:
		return g.SVG()
	case domain.FormatPNG, domain.FormatJPEG:
		var out []byte
		err := raster.Render(g, func(img *image.RGBA) error {
			b, err := imgx.Encode(img, f, c.JPEGQuality)
			out = b
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("不支持的导出格式：%q", string(f))
	}
}
