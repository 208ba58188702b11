package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/qrforge/internal/app/run"
	"github.com/John-Robertt/qrforge/internal/config"
	"github.com/John-Robertt/qrforge/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 批量阶段的进度按间隔节流，最后一次（done==total）总会输出
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time

	throttle     time.Duration
	lastProgress map[string]time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:            w,
		throttle:     500 * time.Millisecond,
		lastProgress: map[string]time.Time{},
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只解码与转换，不写入)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] qrforge run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  formats: %s\n", formatList(eff.Formats))
	fmt.Fprintf(p.w, "  bundle: %s\n", orNone(string(eff.Bundle)))
	fmt.Fprintf(p.w, "  tables: %s\n", formatList(eff.Tables))
	fmt.Fprintf(p.w, "  size: %gpx  caption: %q  separator: %s\n",
		eff.Settings.Size, eff.Settings.GlobalCaption, onOff(eff.Settings.Separator.Enabled),
	)
	if len(eff.Items) > 0 {
		fmt.Fprintf(p.w, "  items: %d 条单独编辑\n", len(eff.Items))
	}
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 out/\n", formatStringListJSON(eff.ExcludeDirs))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.Out)
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "decode":
		fmt.Fprintf(p.w, "解码: decoded=%d failed=%d (%s)\n",
			intField(fields, "decoded"), intField(fields, "failed"), formatShortDuration(dur),
		)
	case "render":
		fmt.Fprintf(p.w, "排版: composed=%d edits=%d settings_version=%d (%s)\n",
			intField(fields, "composed"), intField(fields, "edits"), intField(fields, "version"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: write=%d skip=%d (%s)\n",
			intField(fields, "write"), intField(fields, "skip"), formatShortDuration(dur),
		)
	case "files":
		fmt.Fprintf(p.w, "单条导出: items=%d workers=%d (%s)\n",
			intField(fields, "items"), intField(fields, "workers"), formatShortDuration(dur),
		)
	case "bundle":
		fmt.Fprintf(p.w, "打包: format=%s status=%s (%s)\n",
			stringField(fields, "format"), stringField(fields, "status"), formatShortDuration(dur),
		)
	case "table":
		fmt.Fprintf(p.w, "表格: tables=%d (%s)\n", intField(fields, "tables"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(done, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.Status == domain.StatusFailed {
		fmt.Fprintf(p.w, "[%d/%d] #%d %s FAIL %s: %s (%s)\n",
			done, total, res.Position, res.Source, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
		return
	}
	fmt.Fprintf(p.w, "[%d/%d] #%d %s OK token=%s payload=%s (%s)\n",
		done, total, res.Position, res.Source, res.Token, truncate(res.Payload, 60), formatShortDuration(dur),
	)
}

func (p *progressUI) OnProgress(phase string, done, total int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if done < total && now.Sub(p.lastProgress[phase]) < p.throttle {
		return
	}
	p.lastProgress[phase] = now

	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	fmt.Fprintf(p.w, "进度[%s]: %d/%d %d%% elapsed=%s\n", phase, done, total, pct, formatElapsed(elapsed))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func formatList[T ~string](xs []T) string {
	if len(xs) == 0 {
		return "none"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = string(x)
	}
	return strings.Join(parts, ",")
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
