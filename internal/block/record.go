// 包 block：普查街区多边形记录与属性模式，供去重、合并、持久化等各阶段共享
package block

import (
	"github.com/twpayne/go-geos"
)

// 文档注释：多边形记录（一行街区/实体）
// 背景：承载标识、行政区元数据、平面几何与数值属性；解析阶段由 geojson 构造，合并阶段生成新记录而不修改输入。
// 约束：几何须位于投影（米制）坐标系；Values 键集合由 Schema.NumCols 决定，缺失视为 0。
type Record struct {
	ID        string
	OrigID    string
	CommuneID int
	Commune   string
	ZoneType  string
	Geom      *geos.Geom
	Values    map[string]float64
	// WasSplit 对应输出字段 was_multipart
	WasSplit bool
	// Absorbed 对应输出字段 comb_adj：0、1 或 2
	Absorbed int
	Warnings []string
}

// Clone：复制记录的可变部分；几何只读共享
func (r *Record) Clone() *Record {
	c := *r
	c.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = v
	}
	if len(r.Warnings) > 0 {
		c.Warnings = append([]string(nil), r.Warnings...)
	}
	return &c
}

func (r *Record) Value(col string) float64 {
	if r.Values == nil {
		return 0
	}
	return r.Values[col]
}

func (r *Record) Set(col string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[col] = v
}

// Area：几何面积；空几何返回 0
func (r *Record) Area() float64 {
	if r.Geom == nil || r.Geom.IsEmpty() {
		return 0
	}
	return r.Geom.Area()
}

func (r *Record) Warn(kind string) {
	r.Warnings = append(r.Warnings, kind)
}
