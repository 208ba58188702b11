package domain

// OutState 描述输出目录的现状（只做 ReadDir，不读内容）。
type OutState struct {
	OutDir string

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 冲突判定。
	ExistingNames map[string]struct{}
}

// FilePlan 规划一个单条产物的写入。
type FilePlan struct {
	Format Format
	Name   string
	DstAbs string
	// Skip 为 true 表示目标已存在且不允许覆盖。
	Skip bool
}

// ItemPlan 是对某条记录的产物写入计划。
type ItemPlan struct {
	Index int
	Files []FilePlan
}
