package planner

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/qrforge/internal/app/export"
	"github.com/John-Robertt/qrforge/internal/domain"
)

// ReadOutState 读取输出目录的现状（只做 ReadDir，不读文件内容）。
// 若 outDir 不存在，返回空状态且不报错。
func ReadOutState(outDir string) (domain.OutState, error) {
	st := domain.OutState{
		OutDir:        outDir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.OutState{}, err
	}

	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanItem 为一条记录生成确定性的写入计划（不做任何写入）。
//
// 目标已存在且不允许覆盖时标记 Skip；文件名带 position，同批次内不会互相冲突。
func PlanItem(rec domain.Record, formats []domain.Format, st domain.OutState, overwrite bool) domain.ItemPlan {
	files := make([]domain.FilePlan, 0, len(formats))
	for _, f := range formats {
		files = append(files, PlanFile(f, export.FileName(rec.Token, rec.Position(), f), st, overwrite))
	}
	return domain.ItemPlan{Index: rec.Index, Files: files}
}

// PlanFile 规划单个文件（压缩包、表格也走这里）。
func PlanFile(f domain.Format, name string, st domain.OutState, overwrite bool) domain.FilePlan {
	_, exists := st.ExistingNames[name]
	return domain.FilePlan{
		Format: f,
		Name:   name,
		DstAbs: filepath.Join(st.OutDir, name),
		Skip:   exists && !overwrite,
	}
}

// Pending 统计计划中需要实际写入的文件数。
func Pending(plans []domain.ItemPlan) (write, skip int) {
	for _, p := range plans {
		for _, f := range p.Files {
			if f.Skip {
				skip++
			} else {
				write++
			}
		}
	}
	return write, skip
}
