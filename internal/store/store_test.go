package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// widthDecoder 用图片宽度区分输入：宽度越小延迟越大，从而让完成顺序与提交顺序相反。
type widthDecoder struct {
	base    int
	n       int
	failFor map[int]bool

	mu    sync.Mutex
	order []int
}

func (d *widthDecoder) Decode(pixels []byte, width, height int) (string, error) {
	i := width - d.base
	time.Sleep(time.Duration(d.n-i) * 3 * time.Millisecond)

	d.mu.Lock()
	d.order = append(d.order, i)
	d.mu.Unlock()

	if d.failFor[i] {
		return "", errors.New("not found")
	}
	return fmt.Sprintf("https://x.test/?a=1&code=ITEM%02dXYZ", i), nil
}

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	return buf.Bytes()
}

func images(t *testing.T, base, n int) []domain.SourceImage {
	t.Helper()
	out := make([]domain.SourceImage, n)
	for i := range out {
		out[i] = domain.SourceImage{Name: fmt.Sprintf("scan_%02d.png", i), Data: blankPNG(t, base+i, 4)}
	}
	return out
}

func TestIngest_SlotOrderIndependentOfLatency(t *testing.T) {
	const n = 6
	dec := &widthDecoder{base: 10, n: n}
	s := New(dec, n)

	var calls []int
	recs, err := s.Ingest(context.Background(), images(t, 10, n), func(done, total int, rec domain.Record) {
		if total != n {
			t.Errorf("total 期望 %d，实际 %d", n, total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(recs) != n || s.Len() != n {
		t.Fatalf("记录数应等于输入数：recs=%d len=%d", len(recs), s.Len())
	}
	for i, r := range recs {
		if r.Index != i || r.Source != fmt.Sprintf("scan_%02d.png", i) {
			t.Fatalf("槽位 %d 对应了错误的输入：%+v", i, r)
		}
		if want := fmt.Sprintf("ITEM%02d", i); r.Token != want {
			t.Fatalf("槽位 %d token 期望 %q，实际 %q", i, want, r.Token)
		}
	}
	if dec.order[0] == 0 {
		t.Fatalf("测试前提不成立：完成顺序应被打乱，实际 %v", dec.order)
	}
	for i, d := range calls {
		if d != i+1 {
			t.Fatalf("进度回调必须单调递增：%v", calls)
		}
	}
}

func TestIngest_PartialFailureIsolation(t *testing.T) {
	dec := &widthDecoder{base: 10, n: 3, failFor: map[int]bool{1: true}}
	s := New(dec, 2)

	in := images(t, 10, 3)
	in = append(in, domain.SourceImage{Name: "broken.png", Data: []byte("garbage")})

	recs, err := s.Ingest(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("批次级不应失败：%v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("期望 4 条记录，实际 %d", len(recs))
	}
	for _, i := range []int{1, 3} {
		r := recs[i]
		if r.Decoded || r.Payload != domain.FailureMarker || r.Token != domain.NoToken || r.DecodeErr == "" {
			t.Fatalf("失败记录应携带占位 payload 与 N/A：%+v", r)
		}
	}
	for _, i := range []int{0, 2} {
		if !recs[i].Decoded {
			t.Fatalf("其余记录不应受影响：%+v", recs[i])
		}
	}
}

type mustNotDecode struct{ t *testing.T }

func (d mustNotDecode) Decode([]byte, int, int) (string, error) {
	d.t.Errorf("读取失败的图片不应进入解码")
	return "", errors.New("unreachable")
}

func TestIngest_LoadErrorNamesCause(t *testing.T) {
	s := New(mustNotDecode{t}, 1)
	imgs := []domain.SourceImage{{Name: "huge.png", Err: errors.New("文件过大：99 字节")}}
	recs, err := s.Ingest(context.Background(), imgs, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	r := recs[0]
	if r.Decoded || r.Payload != domain.FailureMarker {
		t.Fatalf("读取失败应记为解码失败：%+v", r)
	}
	if !strings.Contains(r.DecodeErr, "文件过大") || !strings.Contains(r.DecodeErr, "huge.png") {
		t.Fatalf("失败原因必须指出真实原因与来源：%q", r.DecodeErr)
	}
	if strings.Contains(r.DecodeErr, "图片为空") {
		t.Fatalf("不应把读取失败报告为空图片：%q", r.DecodeErr)
	}
}

func TestIngest_RealQRCode(t *testing.T) {
	b, err := qrcode.Encode("https://verify.test/p?x=1&code=ZX9Q42AB", qrcode.Medium, 256)
	if err != nil {
		t.Fatalf("生成测试 QR 失败：%v", err)
	}
	s := New(nil, 1)
	recs, err := s.Ingest(context.Background(), []domain.SourceImage{{Name: "real.png", Data: b}}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !recs[0].Decoded || recs[0].Token != "ZX9Q42" {
		t.Fatalf("真实 QR 解码结果不符合预期：%+v", recs[0])
	}
	if !bytes.Equal(recs[0].Original, b) {
		t.Fatalf("原图字节应保留用于回显")
	}
}

func TestReset_ThenIngest_NoLeak(t *testing.T) {
	s := New(&widthDecoder{base: 10, n: 3}, 2)
	first, err := s.Ingest(context.Background(), images(t, 10, 3), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := s.UpdateCaption(0, "old"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Reset 后应为空，实际 %d", s.Len())
	}

	second, err := s.Ingest(context.Background(), images(t, 10, 2), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(second) != 2 || s.Len() != 2 {
		t.Fatalf("记录数应只等于新批次大小：%d", s.Len())
	}

	old := map[string]bool{}
	for _, r := range first {
		old[r.ID] = true
	}
	for _, r := range second {
		if old[r.ID] {
			t.Fatalf("新批次复用了旧 ID：%s", r.ID)
		}
		if r.Caption != "" {
			t.Fatalf("旧批次的编辑不应泄漏：%+v", r)
		}
	}
	// UUIDv7 的字符串序即时间序：ID 按提交顺序单调递增。
	all := append(first, second...)
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("ID 必须单调递增：%s >= %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestIngest_ImpliesReset(t *testing.T) {
	s := New(&widthDecoder{base: 10, n: 4}, 2)
	if _, err := s.Ingest(context.Background(), images(t, 10, 4), nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := s.Ingest(context.Background(), images(t, 10, 1), nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("新一次 Ingest 必须替换旧批次，实际 %d 条", s.Len())
	}
}

func TestIngest_ContextCanceled(t *testing.T) {
	s := New(&widthDecoder{base: 10, n: 8}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Ingest(ctx, images(t, 10, 8), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("取消后不应保留半成品批次，实际 %d 条", s.Len())
	}
}

func TestUpdateCaptionAndSuffix(t *testing.T) {
	s := New(&widthDecoder{base: 10, n: 2}, 1)
	if _, err := s.Ingest(context.Background(), images(t, 10, 2), nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := s.UpdateCaption(1, "Lot-"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := s.UpdateSuffix(1, "7"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	r, _ := s.Record(1)
	if r.Caption != "Lot-" || r.Suffix != "7" {
		t.Fatalf("编辑未生效：%+v", r)
	}
	if r0, _ := s.Record(0); r0.Caption != "" || r0.Suffix != "" {
		t.Fatalf("只能修改目标记录：%+v", r0)
	}

	var ie *domain.IndexError
	if err := s.UpdateSuffix(2, "x"); !errors.As(err, &ie) {
		t.Fatalf("越界应返回 IndexError，实际 %v", err)
	}
	if _, err := s.Record(-1); !errors.As(err, &ie) {
		t.Fatalf("越界应返回 IndexError，实际 %v", err)
	}
}

func TestUpdateSettings_VersionAndValidation(t *testing.T) {
	s := New(nil, 1)
	v0 := s.Snapshot().Version

	st := domain.DefaultSettings()
	st.GlobalCaption = "Batch-"
	snap, err := s.UpdateSettings(st)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if snap.Version != v0+1 || s.Snapshot().Settings.GlobalCaption != "Batch-" {
		t.Fatalf("快照未更新：%+v", snap)
	}

	bad := st
	bad.Size = -1
	if _, err := s.UpdateSettings(bad); err == nil {
		t.Fatalf("非法配置必须被拒绝")
	}
	if s.Snapshot().Version != snap.Version {
		t.Fatalf("被拒绝的配置不应改变快照")
	}

	s.Reset()
	if s.Settings().GlobalCaption != "Batch-" {
		t.Fatalf("Reset 不应重置 Settings")
	}
}

type mapCache struct {
	mu     sync.Mutex
	m      map[string]string
	writes int
}

func (c *mapCache) ReadDecode(hash string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[hash]
	return p, ok, nil
}

func (c *mapCache) WriteDecode(hash, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[hash] = payload
	c.writes++
	return nil
}

func TestIngest_DecodeCache(t *testing.T) {
	imgs := images(t, 10, 2)
	imgs[0].Hash = "aaaa0000"
	imgs[1].Hash = "bbbb1111"

	c := &mapCache{m: map[string]string{"aaaa0000": "https://x.test/?code=HIT777"}}
	s := New(&widthDecoder{base: 10, n: 2}, 2)
	s.SetCache(c)

	recs, err := s.Ingest(context.Background(), imgs, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if recs[0].Token != "HIT777" || !recs[0].Decoded {
		t.Fatalf("第 1 条应命中缓存：%+v", recs[0])
	}
	if recs[1].Token != "ITEM01" {
		t.Fatalf("第 2 条应正常解码：%+v", recs[1])
	}
	if c.writes != 1 || c.m["bbbb1111"] != recs[1].Payload {
		t.Fatalf("只有实际解码的结果需要写回缓存：writes=%d m=%v", c.writes, c.m)
	}
}

func TestViewRecord_PairsRecordWithSnapshot(t *testing.T) {
	s := New(&widthDecoder{base: 10, n: 1}, 1)
	if _, err := s.Ingest(context.Background(), images(t, 10, 1), nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	const rounds = 300
	done := make(chan struct{})
	go func() {
		defer close(done)
		st := domain.DefaultSettings()
		for n := 1; n <= rounds; n++ {
			// 先改记录再改配置：任一时刻 suffix 只可能等于 caption 或比它大 1。
			_ = s.UpdateSuffix(0, strconv.Itoa(n))
			st.GlobalCaption = strconv.Itoa(n)
			if _, err := s.UpdateSettings(st); err != nil {
				t.Errorf("不期望错误：%v", err)
				return
			}
		}
	}()

	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		snap, rec, err := s.ViewRecord(0)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		c, _ := strconv.Atoi(snap.Settings.GlobalCaption)
		sfx, _ := strconv.Atoi(rec.Suffix)
		if sfx != c && sfx != c+1 {
			t.Fatalf("记录与快照不属于同一时刻：suffix=%d caption=%d", sfx, c)
		}
	}

	var ie *domain.IndexError
	if _, _, err := s.ViewRecord(5); !errors.As(err, &ie) {
		t.Fatalf("越界应返回 IndexError，实际 %v", err)
	}
}
