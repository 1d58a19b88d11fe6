package resolve

import (
	"fmt"
	"strings"

	"block-resolver/internal/block"
	"block-resolver/internal/dedupe"

	"github.com/twpayne/go-geos"
)

// PartValues：部件属性的承载方式
type PartValues int

const (
	// PartsSplit：各部件持有互不重叠的份额，组内求和
	PartsSplit PartValues = iota
	// PartsReplicated：各部件复制了原记录的完整属性，组取第一个部件的值
	PartsReplicated
)

func (p PartValues) String() string {
	if p == PartsReplicated {
		return "replicated"
	}
	return "split"
}

func ParsePartValues(s string) (PartValues, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split":
		return PartsSplit, nil
	case "replicated":
		return PartsReplicated, nil
	}
	return PartsSplit, fmt.Errorf("unknown part_values %q", s)
}

func unionAll(geoms []*geos.Geom) *geos.Geom {
	var out *geos.Geom
	for _, g := range geoms {
		if g == nil {
			continue
		}
		if out == nil {
			out = g
			continue
		}
		out = out.Union(g)
	}
	return out
}

// 文档注释：组内合并后的基准记录
// 背景：几何为全部部件的并集；元数据取第一个部件。split 时计数型求和、连续型按部件人口加权（人口为 0 时取第一个部件的值）；replicated 时数值取第一个部件。
func Base(g dedupe.Group, s block.Schema, pv PartValues) *block.Record {
	first := g.Parts[0]
	out := first.Clone()
	out.OrigID = g.OrigID
	out.Warnings = nil
	geoms := make([]*geos.Geom, 0, len(g.Parts))
	for _, p := range g.Parts {
		geoms = append(geoms, p.Geom)
		out.Warnings = append(out.Warnings, p.Warnings...)
	}
	out.Geom = unionAll(geoms)
	if pv == PartsReplicated || len(g.Parts) == 1 {
		return out
	}
	for _, c := range s.CountCols {
		sum := 0.0
		for _, p := range g.Parts {
			sum += p.Value(c)
		}
		out.Set(c, sum)
	}
	pop := out.Value(s.PopCol)
	for _, c := range s.AvgCols() {
		if pop <= 0 {
			out.Set(c, first.Value(c))
			continue
		}
		acc := 0.0
		for _, p := range g.Parts {
			acc += p.Value(c) * p.Value(s.PopCol)
		}
		out.Set(c, acc/pop)
	}
	return out
}

// 文档注释：属性重加权合并（纯函数）
// 背景：组与 0~2 个被吸收的邻居合并为一条新记录；几何取并集，计数型求和，连续型以组人口与邻居人口加权。
// 约束：邻居人口总和为 0 时连续型沿用组自身的值；组与邻居人口总和为 0 时组的值原样保留。
// 原始标识谱系为组标识与各邻居原始标识以下划线连接；有邻居时行政区与区域类型取第一个邻居（与历史输出一致）。
// 返回记录不含最终 ID，由调用方分配；输入不被修改。
func Merge(g dedupe.Group, absorbed []*block.Record, s block.Schema, pv PartValues) *block.Record {
	base := Base(g, s, pv)
	out := base.Clone()
	out.ID = ""
	out.WasSplit = true
	out.Absorbed = len(absorbed)
	if len(absorbed) == 0 {
		return out
	}
	lead := absorbed[0]
	out.CommuneID = lead.CommuneID
	out.Commune = lead.Commune
	out.ZoneType = lead.ZoneType

	geoms := []*geos.Geom{base.Geom}
	lineage := []string{base.OrigID}
	for _, a := range absorbed {
		geoms = append(geoms, a.Geom)
		lineage = append(lineage, lineageOf(a))
		out.Warnings = append(out.Warnings, a.Warnings...)
	}
	out.Geom = unionAll(geoms)
	out.OrigID = strings.Join(lineage, "_")

	for _, c := range s.CountCols {
		sum := base.Value(c)
		for _, a := range absorbed {
			sum += a.Value(c)
		}
		out.Set(c, sum)
	}

	popBase := base.Value(s.PopCol)
	popAbs := 0.0
	for _, a := range absorbed {
		popAbs += a.Value(s.PopCol)
	}
	total := popBase + popAbs
	for _, c := range s.AvgCols() {
		if total <= 0 {
			out.Set(c, base.Value(c))
			continue
		}
		absAvg := base.Value(c)
		if popAbs > 0 {
			acc := 0.0
			for _, a := range absorbed {
				acc += a.Value(c) * a.Value(s.PopCol)
			}
			absAvg = acc / popAbs
		}
		out.Set(c, base.Value(c)*(popBase/total)+absAvg*(popAbs/total))
	}
	return out
}

func lineageOf(r *block.Record) string {
	if r.OrigID != "" {
		return r.OrigID
	}
	return r.ID
}
