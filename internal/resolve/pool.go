package resolve

import (
	"sync"

	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
)

// 文档注释：候选池（单部件多边形的可移除索引表）
// 背景：多部件组可吸收相邻的单部件多边形；一个候选最多被一个组消耗。
// 约束：消耗通过 Claim 原子完成（检查+移除）；读取可并发，写入串行。
type Pool struct {
	mu      sync.RWMutex
	entries []*block.Record
	boxes   []adjacency.Box
	alive   []bool
}

func NewPool(recs []*block.Record) *Pool {
	p := &Pool{
		entries: recs,
		boxes:   make([]adjacency.Box, len(recs)),
		alive:   make([]bool, len(recs)),
	}
	for i, r := range recs {
		p.boxes[i] = adjacency.BoxOf(r.Geom)
		p.alive[i] = true
	}
	return p
}

func (p *Pool) Get(i int) *block.Record { return p.entries[i] }

func (p *Pool) Alive(i int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return i >= 0 && i < len(p.alive) && p.alive[i]
}

// Near：包围盒与 box 相交且未被消耗的候选下标，升序
func (p *Pool) Near(box adjacency.Box) []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []int
	for i := range p.entries {
		if p.alive[i] && p.boxes[i].Meets(box) {
			out = append(out, i)
		}
	}
	return out
}

// Claim：原子地检查并消耗一组候选；任一已被消耗或越界则全部不动并返回 false
func (p *Pool) Claim(idx ...int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, i := range idx {
		if i < 0 || i >= len(p.alive) || !p.alive[i] {
			return false
		}
	}
	for _, i := range idx {
		p.alive[i] = false
	}
	return true
}

// Remaining：未被消耗的候选，保持原顺序
func (p *Pool) Remaining() []*block.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*block.Record, 0, len(p.entries))
	for i, r := range p.entries {
		if p.alive[i] {
			out = append(out, r)
		}
	}
	return out
}
