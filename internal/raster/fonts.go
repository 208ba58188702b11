package raster

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// 光栅化不依赖系统字体：按族名是否为等宽字体映射到内置的 Go 字体。
// SVG 输出仍然保留用户配置的 font-family。

type fontKey struct {
	mono, bold, italic bool
}

var ttfs = map[fontKey][]byte{
	{false, false, false}: goregular.TTF,
	{false, true, false}:  gobold.TTF,
	{false, false, true}:  goitalic.TTF,
	{false, true, true}:   gobolditalic.TTF,
	{true, false, false}:  gomono.TTF,
	{true, true, false}:   gomonobold.TTF,
	{true, false, true}:   gomonoitalic.TTF,
	{true, true, true}:    gomonobolditalic.TTF,
}

var (
	fontsOnce sync.Once
	fonts     map[fontKey]*opentype.Font
	fontsErr  error
)

func loadFonts() {
	fonts = make(map[fontKey]*opentype.Font, len(ttfs))
	for k, b := range ttfs {
		f, err := opentype.Parse(b)
		if err != nil {
			fontsErr = fmt.Errorf("解析内置字体失败：%w", err)
			return
		}
		fonts[k] = f
	}
}

func isMonospace(family string) bool {
	f := strings.ToLower(family)
	for _, kw := range []string{"mono", "courier", "consolas", "menlo"} {
		if strings.Contains(f, kw) {
			return true
		}
	}
	return false
}

// newFace 返回的 Face 由调用方负责 Close。
func newFace(family string, size float64, bold, italic bool) (font.Face, error) {
	fontsOnce.Do(loadFonts)
	if fontsErr != nil {
		return nil, fontsErr
	}
	f := fonts[fontKey{mono: isMonospace(family), bold: bold, italic: italic}]
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72, // 1pt == 1px，与 SVG 用户坐标一致
		Hinting: font.HintingNone,
	})
}
