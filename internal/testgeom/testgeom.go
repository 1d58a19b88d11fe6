// 包 testgeom：测试用几何夹具（WKT 构造矩形与记录）
package testgeom

import (
	"fmt"

	"block-resolver/internal/block"

	"github.com/twpayne/go-geos"
)

// MustWKT：解析失败直接 panic，仅用于测试夹具
func MustWKT(wkt string) *geos.Geom {
	g, err := geos.NewGeomFromWKT(wkt)
	if err != nil {
		panic(fmt.Sprintf("testgeom: %s: %v", wkt, err))
	}
	return g
}

// Rect：轴对齐矩形 [x0,x1]×[y0,y1]
func Rect(x0, y0, x1, y1 float64) *geos.Geom {
	return MustWKT(fmt.Sprintf("POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0))
}

// Record：以矩形几何与属性构造记录，OrigID 与 ID 相同
func Record(id string, g *geos.Geom, values map[string]float64) *block.Record {
	v := make(map[string]float64, len(values))
	for k, x := range values {
		v[k] = x
	}
	return &block.Record{ID: id, OrigID: id, CommuneID: 13110, Commune: "LA FLORIDA", ZoneType: "Urban", Geom: g, Values: v}
}
