package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDecoded = "decoded"
	StatusFailed  = "failed"
)

const (
	FileStatusPlanned = "planned"
	FileStatusWritten = "written"
	FileStatusSkipped = "skipped"
	FileStatusFailed  = "failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Path   string `json:"path"`
	Out    string `json:"out"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary  `json:"summary"`
	Items    []ItemResult   `json:"items"`
	Outputs  []OutputResult `json:"outputs"`
	Warnings []string       `json:"warnings"`
}

type ReportSummary struct {
	Decoded       int `json:"decoded"`
	DecodeFailed  int `json:"decode_failed"`
	FilesWritten  int `json:"files_written"`
	FilesSkipped  int `json:"files_skipped"`
	ExportsFailed int `json:"exports_failed"`
}

// ItemResult 对应一条记录（position 与输入顺序一一对应）。
type ItemResult struct {
	Position int    `json:"position"`
	Source   string `json:"source"`
	Token    string `json:"token"`
	Caption  string `json:"caption"`
	Payload  string `json:"payload"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

type FileResult struct {
	Dst       string `json:"dst"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// OutputResult 对应批次级产物（压缩包、表格）。Position==0 的条目无法归属到单条记录。
type OutputResult struct {
	Kind      string `json:"kind"` // "bundle:png" / "table:xlsx" / "config" ...
	Dst       string `json:"dst"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按 position 稳定排序（position==0 的合成条目排在最后）
// 3) summary 由 items/outputs 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i].Position, r.Items[j].Position
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusDecoded:
			s.Decoded++
		case StatusFailed:
			s.DecodeFailed++
		}
		for _, f := range it.Files {
			switch f.Status {
			case FileStatusWritten:
				s.FilesWritten++
			case FileStatusSkipped:
				s.FilesSkipped++
			case FileStatusFailed:
				s.ExportsFailed++
			}
		}
	}
	for _, o := range r.Outputs {
		switch o.Status {
		case FileStatusWritten:
			s.FilesWritten++
		case FileStatusSkipped:
			s.FilesSkipped++
		case FileStatusFailed:
			s.ExportsFailed++
		}
	}
	r.Summary = s

	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Outputs == nil {
		r.Outputs = []OutputResult{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
