package qrx

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// Decoder 把 RGBA 像素解码为 QR payload。
//
// 约束：实现必须是纯函数，并且任何失败都以 *domain.DecodeError 返回（不允许 panic 穿透）。
type Decoder interface {
	Decode(pixels []byte, width, height int) (string, error)
}

// ZXing 是基于 gozxing 的 Decoder 实现。
type ZXing struct{}

var _ Decoder = ZXing{}

func (ZXing) Decode(pixels []byte, width, height int) (string, error) {
	return Decode(pixels, width, height)
}

// Decode 解码一块 RGBA 像素（len(pixels) 必须等于 4*width*height）。
func Decode(pixels []byte, width, height int) (payload string, err error) {
	if width <= 0 || height <= 0 {
		return "", &domain.DecodeError{Err: fmt.Errorf("图片尺寸无效：%dx%d", width, height)}
	}
	if len(pixels) != 4*width*height {
		return "", &domain.DecodeError{Err: fmt.Errorf("像素长度 %d 与尺寸 %dx%d 不匹配", len(pixels), width, height)}
	}

	// gozxing 在个别畸形输入上会 panic；边界内统一转成 DecodeError。
	defer func() {
		if r := recover(); r != nil {
			payload = ""
			err = &domain.DecodeError{Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	img := &image.RGBA{
		Pix:    pixels,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}

	bmp, e := gozxing.NewBinaryBitmapFromImage(img)
	if e != nil {
		return "", &domain.DecodeError{Err: e}
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, e := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if e != nil {
		return "", &domain.DecodeError{Err: e}
	}
	if res == nil {
		return "", &domain.DecodeError{Err: errors.New("未找到 QR")}
	}
	return res.GetText(), nil
}
