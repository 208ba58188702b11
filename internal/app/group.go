package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/qrforge/internal/domain"
)

// TokenGroup 是共享同一个 token 的记录（Positions 为 1-based，升序）。
type TokenGroup struct {
	Token     string
	Positions []int
}

// GroupByToken 把记录按 token 分组。
//
// - groups 稳定排序：按 Token 字典序
// - group 内 Positions 升序
// - 解码失败（token 为 N/A）的记录不参与分组
func GroupByToken(recs []domain.Record) []TokenGroup {
	index := make(map[string]int, len(recs))
	groups := make([]TokenGroup, 0, len(recs))

	for _, r := range recs {
		if !r.Decoded || r.Token == domain.NoToken {
			continue
		}
		if idx, ok := index[r.Token]; ok {
			groups[idx].Positions = append(groups[idx].Positions, r.Position())
			continue
		}
		index[r.Token] = len(groups)
		groups = append(groups, TokenGroup{Token: r.Token, Positions: []int{r.Position()}})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Token < groups[j].Token })
	for i := range groups {
		sort.Ints(groups[i].Positions)
	}
	return groups
}

// DuplicateTokenWarnings 对出现多次的 token 生成警告。
// token 只是启发式提取的短标识，不保证唯一；文件名因为带 position 不会冲突，但表格里可能让人混淆。
func DuplicateTokenWarnings(recs []domain.Record) []string {
	var out []string
	for _, g := range GroupByToken(recs) {
		if len(g.Positions) < 2 {
			continue
		}
		ps := make([]string, len(g.Positions))
		for i, p := range g.Positions {
			ps[i] = strconv.Itoa(p)
		}
		out = append(out, fmt.Sprintf("token %q 重复出现在第 %s 条", g.Token, strings.Join(ps, "、")))
	}
	return out
}
