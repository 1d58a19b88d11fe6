// 包 dedupe：按标识出现次数拆分单部件与多部件记录
package dedupe

import (
	"sort"

	"block-resolver/internal/block"
)

// 文档注释：按标识拆分记录
// 背景：上游空间运算（如城市街区减去农村区域）会让同一标识对应多个几何部件；出现一次的为单部件，其余为重复。
// 约束：保持输入顺序；keepLargest 时每个重复标识的最大面积成员额外进入 singles（面积相同取先出现者），duplicates 仍返回全部成员。
func Partition(recs []*block.Record, keepLargest bool) (singles, duplicates []*block.Record) {
	count := make(map[string]int, len(recs))
	for _, r := range recs {
		count[r.ID]++
	}
	largest := make(map[string]*block.Record)
	for _, r := range recs {
		if count[r.ID] == 1 {
			singles = append(singles, r)
			continue
		}
		duplicates = append(duplicates, r)
		if keepLargest {
			if cur, ok := largest[r.ID]; !ok || r.Area() > cur.Area() {
				largest[r.ID] = r
			}
		}
	}
	if keepLargest && len(largest) > 0 {
		// 按输入顺序合入，保证结果稳定
		out := make([]*block.Record, 0, len(singles)+len(largest))
		for _, r := range recs {
			if count[r.ID] == 1 || largest[r.ID] == r {
				out = append(out, r)
			}
		}
		singles = out
	}
	return singles, duplicates
}

// Group：同一原始标识下的全部部件
type Group struct {
	OrigID string
	Parts  []*block.Record
}

// Groups：按 OrigID 分组，组按原始标识升序，组内保持输入顺序
func Groups(parts []*block.Record) []Group {
	idx := make(map[string]int)
	var out []Group
	for _, r := range parts {
		key := r.OrigID
		if key == "" {
			key = r.ID
		}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, Group{OrigID: key})
		}
		out[i].Parts = append(out[i].Parts, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrigID < out[j].OrigID })
	return out
}
