package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func tinyPNG(t *testing.T, w int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 2))); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	return buf.Bytes()
}
