package domain

// FailureMarker 是解码失败记录的 payload 占位文本（对用户可见，不会被静默丢弃）。
const FailureMarker = "Error: Could not read QR"

// NoToken 是无法提取 token 时的占位值。
const NoToken = "N/A"

// SourceImage 是一次提交中的单个输入图片（原始文件字节）。
type SourceImage struct {
	Name string
	Data []byte
	// Hash 是内容摘要（blake3 hex），用于识别重复提交的同一张图片；可为空。
	Hash string
	// Err 记录读取阶段的失败（文件过大、无权限等）；非 nil 时 Data 为空。
	Err error
}

// Record 是一张输入图片对应的记录。
//
// 不变量：
// - Index 在批次生命周期内固定，等于提交顺序
// - ID 在提交时按顺序分配（UUIDv7，单调递增），Reset 后不会复用
// - Caption/Suffix 只由 Store 原地修改
type Record struct {
	ID    string
	Index int

	Source   string
	Original []byte // 仅用于回显，渲染不依赖

	Payload   string // 解码成功为原文；失败为 FailureMarker
	Decoded   bool
	DecodeErr string

	Token string

	Caption string // 用户覆盖的 caption（空则回退到全局默认）
	Suffix  string // FE number，总是追加在 caption 之后
}

// Position 是面向用户的 1-based 序号（文件名、表格都用它）。
func (r Record) Position() int { return r.Index + 1 }

// EffectiveCaption 返回实际渲染/导出的 caption 文本。
//
// 渲染与表格导出必须共用此函数，避免两边的 caption 规则漂移。
func EffectiveCaption(r Record, s Settings) string {
	base := r.Caption
	if base == "" {
		base = s.GlobalCaption
	}
	return base + r.Suffix
}

// ImageFile 是扫描阶段发现的输入图片（只有 stat 信息，不含内容）。
type ImageFile struct {
	AbsPath string
	RelPath string
	Ext     string
	Size    int64
	ModUnix int64
}
