package store

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/John-Robertt/qrforge/internal/code"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/imgx"
	"github.com/John-Robertt/qrforge/internal/infra/qrx"
)

// DefaultConcurrency 是 Ingest 的默认并发数。
const DefaultConcurrency = 4

// ItemFunc 在单张图片处理完成时被调用（可能来自多个 goroutine，但调用本身是串行的）。
type ItemFunc func(done, total int, rec domain.Record)

// DecodeCache 按图片内容摘要缓存解码成功的 payload（可选）。
type DecodeCache interface {
	ReadDecode(hash string) (string, bool, error)
	WriteDecode(hash, payload string) error
}

// Store 持有当前批次的记录序列与共享 Settings，是二者唯一的写入方。
//
// 约束：
// - 读接口一律返回副本，调用方不能通过返回值修改内部状态
// - 解码期间不持锁；每条记录的结果以一次加锁的槽位写入落地
type Store struct {
	dec         qrx.Decoder
	concurrency int
	cache       DecodeCache

	mu      sync.RWMutex
	gen     uint64 // 每次 Reset/Ingest 递增，用于丢弃过期批次的迟到写入
	records []domain.Record
	snap    domain.Snapshot
}

// New 创建一个空 Store；settings 初始为 DefaultSettings（version=1）。
func New(dec qrx.Decoder, concurrency int) *Store {
	if dec == nil {
		dec = qrx.ZXing{}
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Store{
		dec:         dec,
		concurrency: concurrency,
		snap:        domain.Snapshot{Version: 1, Settings: domain.DefaultSettings()},
	}
}

// SetCache 设置解码缓存；必须在 Ingest 之前调用。
func (s *Store) SetCache(c DecodeCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c
}

// Ingest 用 images 替换当前批次（隐含 Reset），并发解码后按提交顺序落槽。
//
// 单张失败不影响其他：该记录携带 FailureMarker 与 "N/A"。
// 只有 ctx 被取消时才返回错误，此时批次被清空（不保留半成品）。
func (s *Store) Ingest(ctx context.Context, images []domain.SourceImage, onItem ItemFunc) ([]domain.Record, error) {
	placeholders := make([]domain.Record, len(images))
	for i, img := range images {
		// 按提交顺序分配 UUIDv7，保证 ID 单调递增且与 Index 同序。
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		placeholders[i] = domain.Record{
			ID:       id.String(),
			Index:    i,
			Source:   img.Name,
			Original: img.Data,
			Payload:  domain.FailureMarker,
			Token:    domain.NoToken,
		}
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.records = placeholders
	c := s.cache
	s.mu.Unlock()

	workers := s.concurrency
	if workers > len(images) {
		workers = len(images)
	}

	jobs := make(chan int)
	results := make(chan domain.Record, len(images))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- s.resolve(c, placeholders[i], images[i])
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i := range images {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := 0
	for rec := range results {
		s.mu.Lock()
		if s.gen == gen {
			s.records[rec.Index] = rec
		}
		s.mu.Unlock()

		done++
		if onItem != nil {
			onItem(done, len(images), rec)
		}
	}

	if err := ctx.Err(); err != nil && done < len(images) {
		s.mu.Lock()
		if s.gen == gen {
			s.gen++
			s.records = nil
		}
		s.mu.Unlock()
		return nil, err
	}
	return s.Records(), nil
}

func (s *Store) resolve(c DecodeCache, rec domain.Record, img domain.SourceImage) domain.Record {
	if img.Err != nil {
		return failed(rec, &domain.DecodeError{Source: img.Name, Err: img.Err})
	}
	if c != nil && img.Hash != "" {
		if payload, ok, err := c.ReadDecode(img.Hash); err == nil && ok {
			return decoded(rec, payload)
		}
	}

	pix, w, h, err := imgx.DecodePixels(img.Data)
	if err != nil {
		return failed(rec, &domain.DecodeError{Source: img.Name, Err: err})
	}
	payload, err := s.dec.Decode(pix, w, h)
	if err != nil {
		var de *domain.DecodeError
		if errors.As(err, &de) {
			de.Source = img.Name
		} else {
			err = &domain.DecodeError{Source: img.Name, Err: err}
		}
		return failed(rec, err)
	}

	if c != nil && img.Hash != "" {
		// 写缓存失败（包括只读）不影响本次结果。
		_ = c.WriteDecode(img.Hash, payload)
	}
	return decoded(rec, payload)
}

func decoded(rec domain.Record, payload string) domain.Record {
	rec.Payload = payload
	rec.Decoded = true
	rec.DecodeErr = ""
	rec.Token = code.Extract(payload)
	return rec
}

func failed(rec domain.Record, err error) domain.Record {
	rec.Payload = domain.FailureMarker
	rec.Decoded = false
	rec.DecodeErr = err.Error()
	rec.Token = domain.NoToken
	return rec
}

// Reset 清空记录；Settings 不受影响。
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.records = nil
}

// UpdateCaption 修改单条记录的 caption 覆盖值。
func (s *Store) UpdateCaption(index int, text string) error {
	return s.mutate(index, func(r *domain.Record) { r.Caption = text })
}

// UpdateSuffix 修改单条记录的 FE number 后缀。
func (s *Store) UpdateSuffix(index int, text string) error {
	return s.mutate(index, func(r *domain.Record) { r.Suffix = text })
}

func (s *Store) mutate(index int, fn func(*domain.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.records) {
		return &domain.IndexError{Index: index, Len: len(s.records)}
	}
	fn(&s.records[index])
	return nil
}

// UpdateSettings 整体替换共享 Settings，返回带新版本号的快照。
func (s *Store) UpdateSettings(st domain.Settings) (domain.Snapshot, error) {
	if err := st.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = domain.Snapshot{Version: s.snap.Version + 1, Settings: st}
	return s.snap, nil
}

// Snapshot 返回当前 Settings 快照。
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Settings 返回当前 Settings（值拷贝）。
func (s *Store) Settings() domain.Settings {
	return s.Snapshot().Settings
}

// Len 返回记录数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Record 返回第 index 条记录的副本。
func (s *Store) Record(index int) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.records) {
		return domain.Record{}, &domain.IndexError{Index: index, Len: len(s.records)}
	}
	return s.records[index], nil
}

// Records 返回全部记录的副本（按 Index 排列）。
func (s *Store) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Record(nil), s.records...)
}

// ViewRecord 原子地返回快照与第 index 条记录，保证二者来自同一时刻。
func (s *Store) ViewRecord(index int) (domain.Snapshot, domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.records) {
		return s.snap, domain.Record{}, &domain.IndexError{Index: index, Len: len(s.records)}
	}
	return s.snap, s.records[index], nil
}

// View 原子地返回快照与记录，导出时用它保证“同一批次使用同一份配置”。
func (s *Store) View() (domain.Snapshot, []domain.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, append([]domain.Record(nil), s.records...)
}
