package run

import (
	"time"

	"github.com/John-Robertt/qrforge/internal/config"
	"github.com/John-Robertt/qrforge/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某张图片解码完成时调用（完成顺序，不是 position 顺序）。
	OnItemDone(done, total int, res domain.ItemResult, dur time.Duration)
	// OnProgress 报告批量阶段（files/bundle）的进度；done 单调递增，最后一次等于 total。
	OnProgress(phase string, done, total int, elapsed time.Duration)
}

// nopObserver 让执行流程不必到处判空。
type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                        {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)     {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
func (nopObserver) OnProgress(string, int, int, time.Duration)            {}
