package render

import (
	"sync"

	"github.com/John-Robertt/qrforge/internal/compose"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/store"
)

// Presenter 接收重新排版后的 Graphic（展示层唯一需要实现的接口）。
type Presenter interface {
	Present(index int, g compose.Graphic)
}

// PresenterFunc 让普通函数实现 Presenter。
type PresenterFunc func(index int, g compose.Graphic)

func (f PresenterFunc) Present(index int, g compose.Graphic) { f(index, g) }

// Edit 是对单条记录的编辑；nil 字段表示不修改。
type Edit struct {
	Caption *string
	Suffix  *string
}

// Coordinator 是展示层与核心之间唯一的入口：OnSettingsChanged / OnRecordEdited。
//
// 两个入口由同一把锁串行化：一次 Settings 变更先落到 Store，再用返回的快照重排全部记录，
// 期间不会穿插其他变更，所以同一轮重排不会混用新旧配置。
type Coordinator struct {
	mu    sync.Mutex
	store *store.Store
	comp  *compose.Composer
	out   Presenter
}

// New 创建 Coordinator；out 为 nil 时只更新状态、不展示。
func New(st *store.Store, comp *compose.Composer, out Presenter) *Coordinator {
	if comp == nil {
		comp = compose.New(nil)
	}
	return &Coordinator{store: st, comp: comp, out: out}
}

// OnSettingsChanged 替换共享 Settings 并重排每一条记录。
func (c *Coordinator) OnSettingsChanged(s domain.Settings) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.store.UpdateSettings(s)
	if err != nil {
		return domain.Snapshot{}, err
	}
	// 重排只读取上面返回的快照，而不是再次向 Store 取“当前”配置。
	for _, rec := range c.store.Records() {
		c.present(rec.Index, c.comp.Compose(rec, snap.Settings))
	}
	return snap, nil
}

// OnRecordEdited 修改单条记录的 caption/suffix，只重排这一条。
func (c *Coordinator) OnRecordEdited(index int, e Edit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Caption != nil {
		if err := c.store.UpdateCaption(index, *e.Caption); err != nil {
			return err
		}
	}
	if e.Suffix != nil {
		if err := c.store.UpdateSuffix(index, *e.Suffix); err != nil {
			return err
		}
	}
	g, err := c.compose(index)
	if err != nil {
		return err
	}
	c.present(index, g)
	return nil
}

func (c *Coordinator) compose(index int) (compose.Graphic, error) {
	snap, rec, err := c.store.ViewRecord(index)
	if err != nil {
		return compose.Graphic{}, err
	}
	return c.comp.Compose(rec, snap.Settings), nil
}

func (c *Coordinator) present(index int, g compose.Graphic) {
	if c.out != nil {
		c.out.Present(index, g)
	}
}
