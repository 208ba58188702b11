package table

import (
	"testing"

	"github.com/John-Robertt/qrforge/internal/domain"
)

func TestRows(t *testing.T) {
	s := domain.DefaultSettings()
	s.GlobalCaption = "Batch-"

	recs := []domain.Record{
		{Index: 0, Token: "123456", Payload: "A=B=123456XYZ", Suffix: "7"},
		{Index: 1, Token: domain.NoToken, Payload: domain.FailureMarker, Caption: "Custom", Suffix: "7"},
	}
	rows := Rows(recs, s)
	if len(rows) != 2 {
		t.Fatalf("期望 2 行，实际 %d", len(rows))
	}

	want := [][]string{
		{"1", "123456", "Batch-7", "A=B=123456XYZ"},
		{"2", "N/A", "Custom7", domain.FailureMarker},
	}
	for i, r := range rows {
		got := r.Strings()
		for j := range want[i] {
			if got[j] != want[i][j] {
				t.Fatalf("第 %d 行第 %d 列（%s）期望 %q，实际 %q", i, j, Header[j], want[i][j], got[j])
			}
		}
	}
}

func TestRows_Empty(t *testing.T) {
	if rows := Rows(nil, domain.DefaultSettings()); rows == nil || len(rows) != 0 {
		t.Fatalf("空输入应返回空切片：%v", rows)
	}
}
