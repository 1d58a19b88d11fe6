package resolve

import (
	"block-resolver/internal/block"
	"block-resolver/internal/dedupe"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"
)

// 文档注释：拆分重标阶段
// 背景：识别同一标识对应多个几何的记录，按输入顺序追加两位序号生成新标识并标记 was_multipart；全部标识右补 '0' 至 16 位。
// 约束：输入记录不被修改；OrigID 为空时取当前 ID 作为原始标识。
// 输入标识不等长时补位后可能重复（如 "13110101" 与 "131101"+"01"）；后出现者附加 id_collision 警告并记录日志。
func Relabel(recs []*block.Record) (singles, parts []*block.Record) {
	cloned := make([]*block.Record, len(recs))
	for i, r := range recs {
		c := r.Clone()
		if c.OrigID == "" {
			c.OrigID = c.ID
		}
		cloned[i] = c
	}
	s, d := dedupe.Partition(cloned, false)
	for _, r := range s {
		r.ID = PadID(r.ID)
		r.WasSplit = false
	}
	seq := make(map[string]int)
	for _, r := range d {
		id := r.ID
		seq[id]++
		r.ID = PlainID(id, seq[id])
		r.WasSplit = true
		r.Absorbed = 0
	}
	reportCollisions(s, d)
	return s, d
}

func reportCollisions(groups ...[]*block.Record) {
	first := make(map[string]string)
	for _, recs := range groups {
		for _, r := range recs {
			prev, ok := first[r.ID]
			if !ok {
				first[r.ID] = r.OrigID
				continue
			}
			r.Warn("id_collision")
			metrics.WarningsTotal.WithLabelValues("id_collision").Inc()
			logger.L().Warn("relabel_id_collision", "id", r.ID, "orig_id", r.OrigID, "other_orig_id", prev)
		}
	}
}
