package code

import (
	"testing"

	"github.com/John-Robertt/qrforge/internal/domain"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A=B=123456XYZ", "123456"},
		{"nodelimiter", "N/A"},
		{domain.FailureMarker, "N/A"},
		{"https://x.test/verify?id=AB12", "AB12"},
		{"k=abcDEF99", "abcDEF"},
		{"k=", ""},
		{"=", ""},
		{"", "N/A"},
		{"q=二维码测试一二三", "二维码测试一"},
	}
	for _, c := range cases {
		if got := Extract(c.in); got != c.want {
			t.Fatalf("Extract(%q)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}
