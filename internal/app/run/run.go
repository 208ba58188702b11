package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/qrforge/internal/app"
	"github.com/John-Robertt/qrforge/internal/app/export"
	"github.com/John-Robertt/qrforge/internal/app/planner"
	"github.com/John-Robertt/qrforge/internal/app/render"
	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/config"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/cache"
	"github.com/John-Robertt/qrforge/internal/infra/fsx"
	"github.com/John-Robertt/qrforge/internal/infra/qrx"
	"github.com/John-Robertt/qrforge/internal/scan"
	"github.com/John-Robertt/qrforge/internal/store"
)

// Deps 允许测试替换解码器与转换器；零值使用默认实现。
type Deps struct {
	Decoder   qrx.Decoder
	Converter export.Converter
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	return ExecuteWith(ctx, eff, Deps{}, obs)
}

// ExecuteWith 是完整入口。
func ExecuteWith(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()
	if obs == nil {
		obs = nopObserver{}
	}
	obs.OnStart(eff)

	rr := domain.RunReport{
		Path:      eff.Path,
		Out:       eff.Out,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	conv := deps.Converter
	if conv == nil {
		conv = export.DefaultConverter{JPEGQuality: eff.JPEGQuality}
	}
	st := store.New(deps.Decoder, eff.Concurrency)
	if !eff.NoCache {
		st.SetCache(cache.New(eff.Out, !eff.Apply))
	}
	comp := compose.New(nil)
	composed := &counter{}
	coord := render.New(st, comp, composed)
	ex := export.New(st, comp, conv, eff.Concurrency)

	// scan
	scanStarted := time.Now()
	files, err := scan.ScanImages(eff.Path, eff.Out, eff.ExcludeDirs)
	if err != nil {
		rr.Outputs = append(rr.Outputs, failedOutput("scan", eff.Path, domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	imgs := scan.Load(files)
	rr.Warnings = append(rr.Warnings, scan.DuplicateWarnings(imgs)...)
	obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))

	if len(imgs) == 0 {
		rr.Warnings = append(rr.Warnings, fmt.Sprintf("在 %s 下没有找到图片", eff.Path))
	}

	// decode
	decodeStarted := time.Now()
	last := time.Now()
	var lastMu sync.Mutex
	recs, err := st.Ingest(ctx, imgs, func(done, total int, rec domain.Record) {
		lastMu.Lock()
		dur := time.Since(last)
		last = time.Now()
		lastMu.Unlock()
		obs.OnItemDone(done, total, itemResult(rec, domain.Settings{}), dur)
	})
	if err != nil {
		rr.Outputs = append(rr.Outputs, failedOutput("decode", eff.Path, domain.ErrCodeIOFailed, fmt.Sprintf("解码被中断：%v", err)))
		return finish()
	}
	var decoded int
	for _, r := range recs {
		if r.Decoded {
			decoded++
		}
	}
	obs.OnPhaseDone("decode", map[string]any{
		"decoded": decoded,
		"failed":  len(recs) - decoded,
	}, time.Since(decodeStarted))

	// render：先整体替换 Settings，再逐条应用编辑
	renderStarted := time.Now()
	snap, err := coord.OnSettingsChanged(eff.Settings)
	if err != nil {
		rr.Outputs = append(rr.Outputs, failedOutput("settings", eff.ConfigFile, domain.ErrorCode(err), err.Error()))
		return finish()
	}
	for _, it := range eff.Items {
		e := render.Edit{Caption: it.Caption, Suffix: it.Suffix}
		if err := coord.OnRecordEdited(it.Position-1, e); err != nil {
			var ie *domain.IndexError
			if errors.As(err, &ie) {
				rr.Warnings = append(rr.Warnings, fmt.Sprintf("items.position=%d 超出范围（共 %d 条），已忽略", it.Position, ie.Len))
				continue
			}
			rr.Warnings = append(rr.Warnings, fmt.Sprintf("items.position=%d 编辑失败：%v", it.Position, err))
		}
	}
	obs.OnPhaseDone("render", map[string]any{
		"composed": composed.Load(),
		"version":  snap.Version,
		"edits":    len(eff.Items),
	}, time.Since(renderStarted))

	snap, recs = st.View()
	rr.Warnings = append(rr.Warnings, app.DuplicateTokenWarnings(recs)...)

	// plan
	planStarted := time.Now()
	outState, err := planner.ReadOutState(eff.Out)
	if err != nil {
		rr.Outputs = append(rr.Outputs, failedOutput("plan", eff.Out, domain.ErrCodeIOFailed, fmt.Sprintf("读取 out 状态失败：%v", err)))
		for _, r := range recs {
			rr.Items = append(rr.Items, itemResult(r, snap.Settings))
		}
		return finish()
	}
	plans := make([]domain.ItemPlan, len(recs))
	for i, r := range recs {
		plans[i] = planner.PlanItem(r, eff.Formats, outState, eff.Overwrite)
	}
	toWrite, toSkip := planner.Pending(plans)
	obs.OnPhaseDone("plan", map[string]any{
		"write": toWrite,
		"skip":  toSkip,
	}, time.Since(planStarted))

	// files：按记录并发（worker pool），记录内串行
	filesStarted := time.Now()
	rr.Items = execFiles(ctx, eff, ex, recs, snap.Settings, plans, obs)
	obs.OnPhaseDone("files", map[string]any{
		"items":   len(recs),
		"workers": eff.Concurrency,
	}, time.Since(filesStarted))

	// bundle
	if eff.Bundle != "" {
		bundleStarted := time.Now()
		var out domain.OutputResult
		if len(recs) == 0 {
			// 空批次在任何写入前拒绝，不创建 out/
			out = failedOutput("bundle:"+string(eff.Bundle), "", domain.ErrCodeEmptyBatch, domain.ErrEmptyBatch.Error())
		} else {
			out = execBundle(ctx, eff, ex, outState, obs)
		}
		rr.Outputs = append(rr.Outputs, out)
		obs.OnPhaseDone("bundle", map[string]any{
			"format": string(eff.Bundle),
			"status": out.Status,
		}, time.Since(bundleStarted))
	}

	// table
	if len(eff.Tables) > 0 {
		tableStarted := time.Now()
		for _, k := range eff.Tables {
			if len(recs) == 0 {
				rr.Outputs = append(rr.Outputs, failedOutput("table:"+string(k), "", domain.ErrCodeEmptyBatch, domain.ErrEmptyBatch.Error()))
				continue
			}
			rr.Outputs = append(rr.Outputs, execTable(eff, ex, k, outState))
		}
		obs.OnPhaseDone("table", map[string]any{"tables": len(eff.Tables)}, time.Since(tableStarted))
	}

	return finish()
}

func execFiles(ctx context.Context, eff config.EffectiveConfig, ex *export.Exporter, recs []domain.Record, s domain.Settings, plans []domain.ItemPlan, obs Observer) []domain.ItemResult {
	items := make([]domain.ItemResult, len(recs))
	for i, r := range recs {
		items[i] = itemResult(r, s)
	}
	if len(plans) == 0 {
		return items
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	type execResult struct {
		index int
		files []domain.FileResult
	}

	jobs := make(chan domain.ItemPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- execResult{index: p.Index, files: execOne(ctx, eff, ex, p)}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	started := time.Now()
	done := 0
	for r := range results {
		done++
		items[r.index].Files = r.files
		obs.OnProgress("files", done, len(plans), time.Since(started))
	}
	return items
}

func execOne(ctx context.Context, eff config.EffectiveConfig, ex *export.Exporter, p domain.ItemPlan) []domain.FileResult {
	out := make([]domain.FileResult, 0, len(p.Files))
	for _, fp := range p.Files {
		fr := domain.FileResult{Dst: relTo(eff.Path, fp.DstAbs), Status: domain.FileStatusPlanned}
		if fp.Skip {
			fr.Status = domain.FileStatusSkipped
			out = append(out, fr)
			continue
		}
		if err := ctx.Err(); err != nil {
			out = append(out, failFile(fr, domain.ErrCodeIOFailed, err.Error()))
			continue
		}

		// dry-run 也做转换，用于提前暴露转换失败；只是不落盘。
		item, err := ex.Single(p.Index, fp.Format)
		if err != nil {
			out = append(out, failFile(fr, domain.ErrorCode(err), err.Error()))
			continue
		}
		if !eff.Apply {
			out = append(out, fr)
			continue
		}

		dir := filepath.Dir(fp.DstAbs)
		if eff.Overwrite {
			err = fsx.WriteFileAtomic(dir, fp.Name, item.Data)
		} else {
			err = fsx.WriteFileAtomicNoOverwrite(dir, fp.Name, item.Data)
		}
		switch {
		case err == nil:
			fr.Status = domain.FileStatusWritten
		case errors.Is(err, os.ErrExist):
			// 规划之后才出现的同名文件：按不覆盖处理
			fr.Status = domain.FileStatusSkipped
		case fsx.IsPathTypeConflict(err):
			fr = failFile(fr, domain.ErrCodeTargetConflict, err.Error())
		default:
			fr = failFile(fr, domain.ErrCodeIOFailed, fmt.Sprintf("写入失败：%v", err))
		}
		out = append(out, fr)
	}
	return out
}

func execBundle(ctx context.Context, eff config.EffectiveConfig, ex *export.Exporter, st domain.OutState, obs Observer) domain.OutputResult {
	name := export.BundleName(eff.Bundle)
	fp := planner.PlanFile(eff.Bundle, name, st, eff.Overwrite)
	res := domain.OutputResult{
		Kind:   "bundle:" + string(eff.Bundle),
		Dst:    relTo(eff.Path, fp.DstAbs),
		Status: domain.FileStatusPlanned,
	}
	if fp.Skip {
		res.Status = domain.FileStatusSkipped
		return res
	}

	started := time.Now()
	progress := func(done, total int) {
		obs.OnProgress("bundle", done, total, time.Since(started))
	}

	var err error
	if eff.Apply {
		err = fsx.WriteStreamAtomic(st.OutDir, name, eff.Overwrite, func(w io.Writer) error {
			return ex.Bundle(ctx, eff.Bundle, w, progress)
		})
	} else {
		_, err = ex.All(ctx, eff.Bundle, progress)
		if err != nil && !errors.Is(err, domain.ErrEmptyBatch) {
			err = &domain.BundleError{Format: eff.Bundle, Err: err}
		}
	}
	return outputStatus(res, err, eff.Apply)
}

func execTable(eff config.EffectiveConfig, ex *export.Exporter, k domain.TableKind, st domain.OutState) domain.OutputResult {
	name := export.TableFileName(k)
	fp := planner.PlanFile("", name, st, eff.Overwrite)
	res := domain.OutputResult{
		Kind:   "table:" + string(k),
		Dst:    relTo(eff.Path, fp.DstAbs),
		Status: domain.FileStatusPlanned,
	}
	if fp.Skip {
		res.Status = domain.FileStatusSkipped
		return res
	}

	var err error
	if eff.Apply {
		err = fsx.WriteStreamAtomic(st.OutDir, name, eff.Overwrite, func(w io.Writer) error {
			return ex.Table(w, k)
		})
	} else {
		err = ex.Table(io.Discard, k)
	}
	return outputStatus(res, err, eff.Apply)
}

func outputStatus(res domain.OutputResult, err error, apply bool) domain.OutputResult {
	switch {
	case err == nil:
		if apply {
			res.Status = domain.FileStatusWritten
		}
	case errors.Is(err, os.ErrExist):
		res.Status = domain.FileStatusSkipped
	case fsx.IsPathTypeConflict(err):
		res.Status = domain.FileStatusFailed
		res.ErrorCode = domain.ErrCodeTargetConflict
		res.ErrorMsg = err.Error()
	default:
		res.Status = domain.FileStatusFailed
		res.ErrorCode = domain.ErrorCode(err)
		res.ErrorMsg = err.Error()
	}
	return res
}

// itemResult 把记录映射为报告条目；s 为零值时 caption 留空（解码阶段尚未应用 Settings）。
func itemResult(r domain.Record, s domain.Settings) domain.ItemResult {
	it := domain.ItemResult{
		Position: r.Position(),
		Source:   r.Source,
		Token:    r.Token,
		Payload:  r.Payload,
		Status:   domain.StatusDecoded,
		Files:    []domain.FileResult{},
	}
	if s.Size > 0 {
		it.Caption = domain.EffectiveCaption(r, s)
	}
	if !r.Decoded {
		it.Status = domain.StatusFailed
		it.ErrorCode = domain.ErrCodeDecodeFailed
		it.ErrorMsg = r.DecodeErr
	}
	return it
}

func failFile(fr domain.FileResult, code, msg string) domain.FileResult {
	fr.Status = domain.FileStatusFailed
	fr.ErrorCode = code
	fr.ErrorMsg = msg
	return fr
}

func failedOutput(kind, dst, code, msg string) domain.OutputResult {
	return domain.OutputResult{
		Kind:      kind,
		Dst:       dst,
		Status:    domain.FileStatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// relTo 尽量输出相对 root 的路径；out 在 root 之外时保留绝对路径。
func relTo(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}

// counter 是一个只计数的 Presenter（CLI 没有画面，只关心重排了多少次）。
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Present(int, compose.Graphic) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) Load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
