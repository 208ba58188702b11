package pdfdoc

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/John-Robertt/qrforge/internal/table"
)

func rows(n int) []table.Row {
	out := make([]table.Row, n)
	for i := range out {
		out[i] = table.Row{
			Position: i + 1,
			Code:     fmt.Sprintf("C%05d", i),
			Caption:  "Batch-" + fmt.Sprint(i),
			Payload:  "https://verify.test/p?serial=" + strings.Repeat("X", 80),
		}
	}
	return out
}

func TestWrite_SinglePage(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "", rows(3)); err != nil {
		t.Fatalf("生成 PDF 失败：%v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("输出不是 PDF")
	}
	n, err := api.PageCount(bytes.NewReader(buf.Bytes()), Config())
	if err != nil {
		t.Fatalf("读取页数失败：%v", err)
	}
	if n != 1 {
		t.Fatalf("3 行应只有 1 页，实际 %d", n)
	}
}

func TestWrite_Paginates(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, DefaultTitle, rows(200)); err != nil {
		t.Fatalf("生成 PDF 失败：%v", err)
	}
	n, err := api.PageCount(bytes.NewReader(buf.Bytes()), Config())
	if err != nil {
		t.Fatalf("读取页数失败：%v", err)
	}
	if n < 2 {
		t.Fatalf("200 行必须分页，实际 %d 页", n)
	}
}

func TestWrite_NonLatinDoesNotFail(t *testing.T) {
	r := []table.Row{{Position: 1, Code: "N/A", Caption: "批次-Ä", Payload: "Error: Could not read QR"}}
	var buf bytes.Buffer
	if err := Write(&buf, "", r); err != nil {
		t.Fatalf("非拉丁字符不应导致失败：%v", err)
	}
}
