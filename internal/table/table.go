package table

import (
	"strconv"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// Header 是表格导出的固定列。
var Header = []string{"Position", "Code", "Caption", "Payload"}

// Row 是一条记录对应的一行。
type Row struct {
	Position int
	Code     string
	Caption  string
	Payload  string
}

// Strings 按 Header 的列顺序返回单元格文本。
func (r Row) Strings() []string {
	return []string{strconv.Itoa(r.Position), r.Code, r.Caption, r.Payload}
}

// Rows 为每条记录生成一行；caption 与渲染共用 domain.EffectiveCaption。
func Rows(records []domain.Record, s domain.Settings) []Row {
	out := make([]Row, 0, len(records))
	for _, rec := range records {
		out = append(out, Row{
			Position: rec.Position(),
			Code:     rec.Token,
			Caption:  domain.EffectiveCaption(rec, s),
			Payload:  rec.Payload,
		})
	}
	return out
}
