package run

import (
	"errors"

	"github.com/John-Robertt/qrforge/internal/app/export"
	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
)

// failToken 在 code 文本等于 token 时失败，其他情况委托给默认转换器。
type failToken struct {
	token string
}

func (c failToken) Convert(g compose.Graphic, f domain.Format) ([]byte, error) {
	if g.Code.Content == c.token {
		return nil, errors.New("injected")
	}
	return export.DefaultConverter{JPEGQuality: 90}.Convert(g, f)
}
