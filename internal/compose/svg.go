package compose

import (
	"encoding/xml"

	"github.com/John-Robertt/qrforge/internal/infra/qrx"
)

// 每种元素带自己的 XMLName，子元素按固定顺序放进 []any，避免同名字段冲突并保证输出顺序。
type svgDoc struct {
	XMLName  xml.Name `xml:"http://www.w3.org/2000/svg svg"`
	Width    string   `xml:"width,attr"`
	Height   string   `xml:"height,attr"`
	ViewBox  string   `xml:"viewBox,attr"`
	Children []any
}

type svgRect struct {
	XMLName xml.Name `xml:"rect"`
	X       string   `xml:"x,attr"`
	Y       string   `xml:"y,attr"`
	Width   string   `xml:"width,attr"`
	Height  string   `xml:"height,attr"`
	Fill    string   `xml:"fill,attr"`
}

type svgPath struct {
	XMLName xml.Name `xml:"path"`
	D       string   `xml:"d,attr"`
	Fill    string   `xml:"fill,attr"`
}

type svgGroup struct {
	XMLName xml.Name `xml:"g"`
	Rect    svgRect
	Path    *svgPath
}

type svgText struct {
	XMLName          xml.Name `xml:"text"`
	X                string   `xml:"x,attr"`
	Y                string   `xml:"y,attr"`
	FontFamily       string   `xml:"font-family,attr"`
	FontSize         string   `xml:"font-size,attr"`
	Fill             string   `xml:"fill,attr"`
	FontWeight       string   `xml:"font-weight,attr"`
	FontStyle        string   `xml:"font-style,attr"`
	TextAnchor       string   `xml:"text-anchor,attr"`
	DominantBaseline string   `xml:"dominant-baseline,attr"`
	Content          string   `xml:",chardata"`
}

type svgLine struct {
	XMLName     xml.Name `xml:"line"`
	X1          string   `xml:"x1,attr"`
	Y1          string   `xml:"y1,attr"`
	X2          string   `xml:"x2,attr"`
	Y2          string   `xml:"y2,attr"`
	Stroke      string   `xml:"stroke,attr"`
	StrokeWidth string   `xml:"stroke-width,attr"`
}

// SVG 序列化为紧凑、自包含的 SVG 文档（无 XML 头）。
//
// 每个元素都显式携带字体与颜色属性，单独拷贝出去也能正确显示。
func (g Graphic) SVG() ([]byte, error) {
	w, h := qrx.Num(g.Width), qrx.Num(g.Height)

	sym := svgGroup{
		Rect: svgRect{
			X: "0", Y: "0",
			Width:  qrx.Num(g.Symbol.Size),
			Height: qrx.Num(g.Symbol.Size),
			Fill:   g.Symbol.Bg,
		},
	}
	if d := g.Symbol.PathData(); d != "" {
		sym.Path = &svgPath{D: d, Fill: g.Symbol.Fg}
	}

	doc := svgDoc{
		Width:   w,
		Height:  h,
		ViewBox: "0 0 " + w + " " + h,
		Children: []any{
			svgRect{X: "0", Y: "0", Width: w, Height: h, Fill: g.Background},
			sym,
			textElem(g.Code),
		},
	}
	if r := g.Rule; r != nil {
		doc.Children = append(doc.Children, svgLine{
			X1:          qrx.Num(r.X1),
			Y1:          qrx.Num(r.Y),
			X2:          qrx.Num(r.X2),
			Y2:          qrx.Num(r.Y),
			Stroke:      r.Color,
			StrokeWidth: qrx.Num(r.Thickness),
		})
	}
	if g.Caption != nil {
		doc.Children = append(doc.Children, textElem(*g.Caption))
	}
	return xml.Marshal(doc)
}

func textElem(t Text) svgText {
	weight, style := "normal", "normal"
	if t.Bold {
		weight = "bold"
	}
	if t.Italic {
		style = "italic"
	}
	return svgText{
		X:                qrx.Num(t.X),
		Y:                qrx.Num(t.Y),
		FontFamily:       t.FontFamily,
		FontSize:         qrx.Num(t.FontSize),
		Fill:             t.Color,
		FontWeight:       weight,
		FontStyle:        style,
		TextAnchor:       "middle",
		DominantBaseline: "middle",
		Content:          t.Content,
	}
}
