// 包 adjacency：多边形邻接判定原语（接触 + 共享边界长度阈值），上层连通性与邻居搜索均基于此
package adjacency

import (
	"github.com/twpayne/go-geos"
)

// DefaultMinSharedLen：默认共享边界最小长度（数据集线性单位，米）
const DefaultMinSharedLen = 5.0

// 文档注释：共享边界长度
// 背景：两个几何边界交集的长度；仅顶点接触时交集为点，长度为 0。
func SharedLength(a, b *geos.Geom) float64 {
	if a == nil || b == nil {
		return 0
	}
	return a.Boundary().Intersection(b.Boundary()).Length()
}

// 文档注释：带最小长度的接触判定
// 背景：拓扑接触（边界相交、内部不相交）但仅在顶点处接触的情形不构成功能邻接，以共享长度阈值过滤。
// 约束：重叠的几何不算接触；minLen 以数据集线性单位计。
func TouchesWithMinLength(a, b *geos.Geom, minLen float64) bool {
	ok, _ := Measure(a, b, minLen)
	return ok
}

// Measure：一次计算接触判定与共享长度，未接触时长度为 0
func Measure(a, b *geos.Geom, minLen float64) (bool, float64) {
	if a == nil || b == nil || !a.Touches(b) {
		return false, 0
	}
	shared := SharedLength(a, b)
	return shared >= minLen, shared
}

// Touches：纯拓扑接触，不检查长度
func Touches(a, b *geos.Geom) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Touches(b)
}
