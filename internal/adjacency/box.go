package adjacency

import (
	"math"

	"github.com/twpayne/go-geos"
)

// 文档注释：包围盒快速过滤
// 背景：接触要求两几何包围盒相交（含边界）；在精确拓扑判定前排除远离的候选。
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBox：不与任何包围盒相交
func EmptyBox() Box {
	return Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func BoxOf(g *geos.Geom) Box {
	if g == nil || g.IsEmpty() {
		return EmptyBox()
	}
	b := g.Bounds()
	return Box{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

// Meets：闭区间相交，边或角接触也算
func (b Box) Meets(o Box) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Extend：返回覆盖两者的最小包围盒
func (b Box) Extend(o Box) Box {
	return Box{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}
