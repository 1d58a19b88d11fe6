package resolve

import (
	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
)

// ContiguityMode：部件连通性判定方式
type ContiguityMode int

const (
	// ContiguityWeak：每个部件至少与一个兄弟部件邻接（历史行为，不保证整体连通）
	ContiguityWeak ContiguityMode = iota
	// ContiguityStrict：部件邻接图必须为单一连通分量
	ContiguityStrict
)

func (m ContiguityMode) String() string {
	if m == ContiguityStrict {
		return "strict"
	}
	return "weak"
}

// partGraph：部件邻接表，边为满足最小共享长度的接触
func partGraph(parts []*block.Record, minLen float64) [][]int {
	adj := make([][]int, len(parts))
	boxes := make([]adjacency.Box, len(parts))
	for i, p := range parts {
		boxes[i] = adjacency.BoxOf(p.Geom)
	}
	for i := 0; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			if !boxes[i].Meets(boxes[j]) {
				continue
			}
			if adjacency.TouchesWithMinLength(parts[i].Geom, parts[j].Geom, minLen) {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}
	return adj
}

// 文档注释：部件是否可直接合并（第一层）
// 背景：单部件天然连通；弱模式仅要求每个节点度数≥1，两对互不相连的邻接部件也会通过；严格模式从任一节点广度优先遍历，要求到达全部部件。
func Contiguous(parts []*block.Record, minLen float64, mode ContiguityMode) bool {
	if len(parts) <= 1 {
		return true
	}
	adj := partGraph(parts, minLen)
	if mode == ContiguityWeak {
		for _, nb := range adj {
			if len(nb) == 0 {
				return false
			}
		}
		return true
	}
	seen := make([]bool, len(parts))
	seen[0] = true
	queue := []int{0}
	reached := 1
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range adj[n] {
			if !seen[m] {
				seen[m] = true
				reached++
				queue = append(queue, m)
			}
		}
	}
	return reached == len(parts)
}
