package resolve

import (
	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
)

func groupBox(parts []*block.Record) adjacency.Box {
	b := adjacency.EmptyBox()
	for _, p := range parts {
		b = b.Extend(adjacency.BoxOf(p.Geom))
	}
	return b
}

// 文档注释：单邻居搜索（第二层）
// 背景：在候选池中寻找与组内每个部件都接触、且每处共享长度均不低于阈值的多边形；多个合格时取共享长度总和最大者。
// 约束：总和相同保留下标更小者；无合格候选返回 ok=false。
func FindSingle(parts []*block.Record, pool *Pool, minLen float64) (best int, total float64, ok bool) {
	best = -1
	for _, i := range pool.Near(groupBox(parts)) {
		cand := pool.Get(i).Geom
		sum := 0.0
		valid := true
		for _, p := range parts {
			touch, shared := adjacency.Measure(cand, p.Geom, minLen)
			if !touch {
				valid = false
				break
			}
			sum += shared
		}
		if valid && (best < 0 || sum > total) {
			best, total = i, sum
		}
	}
	return best, total, best >= 0
}

// Pair：两跳合并选中的一对候选
type Pair struct {
	First, Second int
	// Shared：两候选与其接触部件的共享长度总和（主排序键）
	Shared float64
	// Between：两候选之间的共享长度（次排序键）
	Between float64
}

type touching struct {
	idx    int
	parts  []bool
	shared float64
}

// 文档注释：双邻居搜索（第三层，两跳）
// 背景：仅考虑至少接触一个部件的候选；两两配对，要求二者相互接触且共享长度不低于阈值，并且接触集合的并集覆盖全部部件。
// 约束：按（与部件共享长度总和，二者之间共享长度）降序取第一；完全相同时保留先枚举到的配对；部件覆盖以纯拓扑接触计。
func FindPair(parts []*block.Record, pool *Pool, minLen float64) (Pair, bool) {
	var cands []touching
	for _, i := range pool.Near(groupBox(parts)) {
		cand := pool.Get(i).Geom
		t := touching{idx: i, parts: make([]bool, len(parts))}
		hit := false
		for k, p := range parts {
			if adjacency.Touches(cand, p.Geom) {
				t.parts[k] = true
				t.shared += adjacency.SharedLength(cand, p.Geom)
				hit = true
			}
		}
		if hit {
			cands = append(cands, t)
		}
	}
	if len(cands) < 2 {
		return Pair{}, false
	}
	var best Pair
	found := false
	for a := 0; a < len(cands); a++ {
		ca := cands[a]
		boxA := adjacency.BoxOf(pool.Get(ca.idx).Geom)
		for b := a + 1; b < len(cands); b++ {
			cb := cands[b]
			if !covers(ca.parts, cb.parts) {
				continue
			}
			if !boxA.Meets(adjacency.BoxOf(pool.Get(cb.idx).Geom)) {
				continue
			}
			touch, between := adjacency.Measure(pool.Get(ca.idx).Geom, pool.Get(cb.idx).Geom, minLen)
			if !touch {
				continue
			}
			p := Pair{First: ca.idx, Second: cb.idx, Shared: ca.shared + cb.shared, Between: between}
			if !found || p.Shared > best.Shared || (p.Shared == best.Shared && p.Between > best.Between) {
				best = p
				found = true
			}
		}
	}
	return best, found
}

func covers(a, b []bool) bool {
	for k := range a {
		if !a[k] && !b[k] {
			return false
		}
	}
	return true
}
