package export

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/pdfdoc"
	"github.com/John-Robertt/qrforge/internal/infra/sheet"
	"github.com/John-Robertt/qrforge/internal/store"
	"github.com/John-Robertt/qrforge/internal/table"
)

// DefaultConcurrency 是批量转换的默认并发数。
const DefaultConcurrency = 4

// ProgressFunc 在每条转换完成时调用；done 单调递增，最后一次为 total。
type ProgressFunc func(done, total int)

// Item 是一条已转换的产物。
type Item struct {
	Index    int
	Position int
	Name     string
	Format   domain.Format
	Data     []byte
}

// Exporter 只读 Store：每次导出开始时取一次快照，整批使用同一份 Settings。
type Exporter struct {
	store       *store.Store
	comp        *compose.Composer
	conv        Converter
	concurrency int
}

func New(st *store.Store, comp *compose.Composer, conv Converter, concurrency int) *Exporter {
	if comp == nil {
		comp = compose.New(nil)
	}
	if conv == nil {
		conv = DefaultConverter{}
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Exporter{store: st, comp: comp, conv: conv, concurrency: concurrency}
}

// Single 导出第 index 条记录。
func (e *Exporter) Single(index int, f domain.Format) (Item, error) {
	snap, rec, err := e.store.ViewRecord(index)
	if err != nil {
		return Item{}, err
	}
	return e.convert(rec, snap.Settings, f)
}

func (e *Exporter) convert(rec domain.Record, s domain.Settings, f domain.Format) (Item, error) {
	b, err := e.conv.Convert(e.comp.Compose(rec, s), f)
	if err != nil {
		return Item{}, &domain.ConversionError{Position: rec.Position(), Format: f, Err: err}
	}
	return Item{
		Index:    rec.Index,
		Position: rec.Position(),
		Name:     FileName(rec.Token, rec.Position(), f),
		Format:   f,
		Data:     b,
	}, nil
}

// All 并发转换全部记录，结果按 position 排序。
//
// 任意一条失败即取消其余转换并返回该条的 *domain.ConversionError；空批次返回 domain.ErrEmptyBatch。
func (e *Exporter) All(ctx context.Context, f domain.Format, progress ProgressFunc) ([]Item, error) {
	snap, recs := e.store.View()
	if len(recs) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := e.concurrency
	if workers > len(recs) {
		workers = len(recs)
	}

	type result struct {
		item Item
		err  error
	}

	jobs := make(chan domain.Record)
	results := make(chan result, len(recs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if ctx.Err() != nil {
					continue
				}
				it, err := e.convert(rec, snap.Settings, f)
				results <- result{item: it, err: err}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for _, rec := range recs {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	items := make([]Item, 0, len(recs))
	var firstErr error
	for r := range results {
		if firstErr != nil {
			continue
		}
		if r.err != nil {
			firstErr = r.err
			cancel()
			continue
		}
		items = append(items, r.item)
		if progress != nil {
			progress(len(items), len(recs))
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if len(items) != len(recs) {
		return nil, ctx.Err()
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

// Bundle 把全部记录转换为 f 格式并打成一个 zip 写入 w。
//
// 所有条目转换成功之后才开始写 w；任一条失败返回 *domain.BundleError，w 不会收到任何字节。
func (e *Exporter) Bundle(ctx context.Context, f domain.Format, w io.Writer, progress ProgressFunc) error {
	items, err := e.All(ctx, f, progress)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyBatch) {
			return err
		}
		return &domain.BundleError{Format: f, Err: err}
	}
	if err := WriteZip(w, items); err != nil {
		return &domain.BundleError{Format: f, Err: err}
	}
	return nil
}

// WriteZip 按给定顺序把 items 写成 zip。
func WriteZip(w io.Writer, items []Item) error {
	zw := zip.NewWriter(w)
	modified := time.Now()
	for _, it := range items {
		method := zip.Deflate
		if it.Format.IsRaster() {
			// png/jpg 已经是压缩格式，再 deflate 收益很小。
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     it.Name,
			Method:   method,
			Modified: modified,
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(it.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Table 把全部记录导出为表格（xlsx 或 pdf）。
func (e *Exporter) Table(w io.Writer, kind domain.TableKind) error {
	snap, recs := e.store.View()
	if len(recs) == 0 {
		return domain.ErrEmptyBatch
	}
	rows := table.Rows(recs, snap.Settings)
	switch kind {
	case domain.TablePDF:
		return pdfdoc.Write(w, pdfdoc.DefaultTitle, rows)
	default:
		return sheet.Write(w, rows)
	}
}
