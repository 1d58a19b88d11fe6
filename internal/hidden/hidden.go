// 包 hidden：检测被其他多边形完全覆盖的隐藏多边形，并分配部分重叠区域
package hidden

import (
	"sort"

	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
	"block-resolver/internal/logger"

	"github.com/twpayne/go-geos"
)

// DefaultMinOverlapArea：小于该面积（平方米）的重叠视为数字化噪声
const DefaultMinOverlapArea = 1.0

func boxes(recs []*block.Record) []adjacency.Box {
	out := make([]adjacency.Box, len(recs))
	for i, r := range recs {
		out[i] = adjacency.BoxOf(r.Geom)
	}
	return out
}

func usable(g *geos.Geom) bool { return g != nil && !g.IsEmpty() }

// 文档注释：查找隐藏多边形
// 背景：一个多边形与另一个几何不相等的多边形相交且差集为空，即被完全覆盖，输出中将不可见。
// 约束：返回升序下标，每个下标至多一次；几何相等的重复多边形不算隐藏。
func FindHidden(recs []*block.Record) []int {
	bx := boxes(recs)
	var out []int
	for i, r := range recs {
		if !usable(r.Geom) {
			continue
		}
		for j, o := range recs {
			if i == j || !usable(o.Geom) || !bx[i].Meets(bx[j]) {
				continue
			}
			if !r.Geom.Intersects(o.Geom) || r.Geom.Equals(o.Geom) {
				continue
			}
			if r.Geom.Difference(o.Geom).IsEmpty() {
				out = append(out, i)
				break
			}
		}
	}
	if len(out) > 0 {
		logger.L().Warn("hidden_polygons_found", "count", len(out))
	}
	return out
}

type overlap struct {
	i, j  int
	inter *geos.Geom
}

// 文档注释：分配部分重叠区域
// 背景：相互重叠的两个多边形中，重叠部分保留在面积较小者，从较大者中扣除（面积相等时从前者扣除）。
// 约束：重叠面积低于 minArea 或几何相等的对不处理；输入不被修改，返回完整的新切片与涉及的下标（升序）。
func ResolveOverlaps(recs []*block.Record, minArea float64) ([]*block.Record, []int) {
	bx := boxes(recs)
	var pairs []overlap
	touched := make(map[int]bool)
	for i := range recs {
		if !usable(recs[i].Geom) {
			continue
		}
		for j := i + 1; j < len(recs); j++ {
			if !usable(recs[j].Geom) || !bx[i].Meets(bx[j]) {
				continue
			}
			a, b := recs[i].Geom, recs[j].Geom
			if a.Equals(b) {
				continue
			}
			inter := a.Intersection(b)
			if inter.IsEmpty() || inter.Area() < minArea {
				continue
			}
			pairs = append(pairs, overlap{i: i, j: j, inter: inter})
			touched[i] = true
			touched[j] = true
		}
	}

	out := make([]*block.Record, len(recs))
	copy(out, recs)
	cloned := make(map[int]bool)
	mutable := func(k int) *block.Record {
		if !cloned[k] {
			out[k] = out[k].Clone()
			cloned[k] = true
		}
		return out[k]
	}
	for _, p := range pairs {
		gi, gj := out[p.i].Geom, out[p.j].Geom
		if gi.Area() < gj.Area() {
			r := mutable(p.j)
			r.Geom = gj.Difference(p.inter)
		} else {
			r := mutable(p.i)
			r.Geom = gi.Difference(p.inter)
		}
	}

	idx := make([]int, 0, len(touched))
	for k := range touched {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	if len(pairs) > 0 {
		logger.L().Info("overlaps_resolved", "pairs", len(pairs), "polygons", len(idx))
	}
	return out, idx
}
