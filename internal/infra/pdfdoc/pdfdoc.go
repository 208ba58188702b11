package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/John-Robertt/qrforge/internal/table"
)

// DefaultTitle 是文档标题。
const DefaultTitle = "QR Code Data Export"

const (
	margin   = 10.0
	lineH    = 4.5
	cellPad  = 1.5
	fontSize = 9.0
)

// 列宽（mm），合计等于 A4 纵向可用宽度 190。
var colWidths = []float64{18, 24, 48, 100}

var disableConfigDir sync.Once

// Config 返回 pdfcpu 配置；不读写用户目录下的 pdfcpu 配置。
func Config() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Write 生成带标题的分页表格，每页重复表头，随后经 pdfcpu 校验并优化后写入 w。
func Write(w io.Writer, title string, rows []table.Row) error {
	if title == "" {
		title = DefaultTitle
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("qrforge", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	_, pageH := pdf.GetPageSize()
	bottom := pageH - margin

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	header := func() {
		pdf.SetFont("Helvetica", "B", fontSize)
		pdf.SetFillColor(30, 30, 50)
		pdf.SetTextColor(255, 255, 255)
		x := margin
		y := pdf.GetY()
		for i, h := range table.Header {
			pdf.SetXY(x, y)
			pdf.CellFormat(colWidths[i], lineH+2*cellPad, tr(h), "1", 0, "C", true, 0, "")
			x += colWidths[i]
		}
		pdf.SetXY(margin, y+lineH+2*cellPad)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", fontSize)
	}
	header()

	for _, r := range rows {
		cells := r.Strings()
		lines := make([][][]byte, len(cells))
		n := 1
		for i, c := range cells {
			lines[i] = pdf.SplitLines([]byte(tr(c)), colWidths[i]-2*cellPad)
			if len(lines[i]) > n {
				n = len(lines[i])
			}
		}
		h := float64(n)*lineH + 2*cellPad

		if pdf.GetY()+h > bottom {
			pdf.AddPage()
			header()
		}

		x, y := margin, pdf.GetY()
		for i := range cells {
			pdf.Rect(x, y, colWidths[i], h, "D")
			for j, ln := range lines[i] {
				pdf.SetXY(x+cellPad, y+cellPad+float64(j)*lineH)
				pdf.CellFormat(colWidths[i]-2*cellPad, lineH, string(ln), "", 0, "L", false, 0, "")
			}
			x += colWidths[i]
		}
		pdf.SetXY(margin, y+h)
	}

	var raw bytes.Buffer
	if err := pdf.Output(&raw); err != nil {
		return fmt.Errorf("生成 PDF 失败：%w", err)
	}
	if err := api.Optimize(bytes.NewReader(raw.Bytes()), w, Config()); err != nil {
		return fmt.Errorf("优化 PDF 失败：%w", err)
	}
	return nil
}
