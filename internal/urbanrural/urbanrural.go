// 包 urbanrural：合并城市街区与农村实体两层数据
package urbanrural

import (
	"block-resolver/internal/block"
	"block-resolver/internal/dedupe"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"

	"github.com/twpayne/go-geos"
)

const (
	ZoneUrban = "Urban"
	ZoneRural = "Rural"
)

// DefaultCommunes：圣地亚哥都会区东南部常用行政区
var DefaultCommunes = []int{13110, 13111, 13112, 13202, 13201, 13131, 13203}

type Merger struct {
	Communes []int
	PopCol   string
}

func New(communes []int, popCol string) *Merger {
	if len(communes) == 0 {
		communes = DefaultCommunes
	}
	if popCol == "" {
		popCol = "n_per"
	}
	return &Merger{Communes: communes, PopCol: popCol}
}

// 文档注释：合并城市与农村两层
// 背景：两层先按行政区与人口过滤并标注区域类型；城市几何扣除全部农村几何的并集，避免两层重叠；被切开的街区拆为同标识多部件，城市层同标识多部件只保留面积最大者。
// 约束：输入不被修改；扣除后为空的城市记录保留并附加 empty_after_rural_difference 警告。输出顺序为城市在前、农村在后。
func (m *Merger) Combine(urban, rural []*block.Record) []*block.Record {
	u := m.filter(urban, ZoneUrban)
	r := m.filter(rural, ZoneRural)

	var ruralUnion *geos.Geom
	for _, rec := range r {
		if rec.Geom == nil || rec.Geom.IsEmpty() {
			continue
		}
		if ruralUnion == nil {
			ruralUnion = rec.Geom
			continue
		}
		ruralUnion = ruralUnion.Union(rec.Geom)
	}
	if ruralUnion != nil {
		cut := make([]*block.Record, 0, len(u))
		for _, rec := range u {
			if rec.Geom == nil || !rec.Geom.Intersects(ruralUnion) {
				cut = append(cut, rec)
				continue
			}
			rec.Geom = rec.Geom.Difference(ruralUnion)
			if rec.Geom.IsEmpty() {
				rec.Warn("empty_after_rural_difference")
				metrics.WarningsTotal.WithLabelValues("empty_after_rural_difference").Inc()
				logger.L().Warn("urban_block_empty_after_difference", "id", rec.ID)
			}
			cut = append(cut, explode(rec)...)
		}
		u = cut
	}

	kept, dups := dedupe.Partition(u, true)
	logger.L().Info("urban_rural_combined",
		"urban", len(u), "rural", len(r), "urban_duplicates_dropped", len(dups)-countDistinct(dups))

	out := make([]*block.Record, 0, len(kept)+len(r))
	out = append(out, kept...)
	return append(out, r...)
}

func (m *Merger) filter(in []*block.Record, zone string) []*block.Record {
	allow := make(map[int]bool, len(m.Communes))
	for _, c := range m.Communes {
		allow[c] = true
	}
	out := make([]*block.Record, 0, len(in))
	for _, rec := range in {
		if !allow[rec.CommuneID] || rec.Value(m.PopCol) <= 0 {
			continue
		}
		c := rec.Clone()
		c.ZoneType = zone
		out = append(out, c)
	}
	return out
}

// explode：扣除后被切成多块的记录拆为同标识的多条记录，交由去重保留最大块
func explode(rec *block.Record) []*block.Record {
	n := rec.Geom.NumGeometries()
	if n <= 1 {
		return []*block.Record{rec}
	}
	out := make([]*block.Record, 0, n)
	for i := 0; i < n; i++ {
		c := rec.Clone()
		c.Geom = rec.Geom.Geometry(i).Clone()
		out = append(out, c)
	}
	logger.L().Debug("urban_block_split_by_rural", "id", rec.ID, "parts", n)
	return out
}

func countDistinct(recs []*block.Record) int {
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.ID] = true
	}
	return len(seen)
}
