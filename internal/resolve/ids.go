package resolve

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PlainWidth：拆分重标（不合并）输出的标识宽度
	PlainWidth = 16
	// MergeWidth：合并重标输出的标识宽度；与 PlainWidth 的差异沿用历史输出，下游确认前不统一
	MergeWidth = 15
)

// padRight：右侧补 '0' 至 width；已达宽度则不截断
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat("0", width-len(s))
}

// fitWidth：截断并右补 '0' 至恰好 width
func fitWidth(s string, width int) string {
	if len(s) > width {
		s = s[:width]
	}
	return padRight(s, width)
}

// PadID：单部件记录在重标阶段的标识宽度规范化
func PadID(id string) string { return padRight(id, PlainWidth) }

// PlainID：拆分重标，原始标识 + 两位序号（从 1 起），右补 '0' 至 16 位
func PlainID(orig string, seq int) string {
	return padRight(fmt.Sprintf("%s%02d", orig, seq), PlainWidth)
}

// suffixOf：标识末三位作为数字后缀；不可解析返回 -1
func suffixOf(id string) int {
	if len(id) < 3 {
		return -1
	}
	n, err := strconv.Atoi(id[len(id)-3:])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// 文档注释：合并重标分配器
// 背景：去掉标识末尾两位多部件后缀得到前缀，在已用标识（输入已有 + 本次已分配）中找同前缀的最大三位后缀，分配 max+1，再截断/补零到 15 位。
// 约束：每个前缀只在首次分配时全量扫描一次，之后递增计数；截断后若与已用标识冲突则继续递增，保证本次运行内标识唯一。
// 非并发安全，由编排器在提交阶段串行调用。
type Allocator struct {
	used map[string]struct{}
	next map[string]int
}

func NewAllocator(existing []string) *Allocator {
	a := &Allocator{used: make(map[string]struct{}, len(existing)), next: make(map[string]int)}
	for _, id := range existing {
		a.used[id] = struct{}{}
	}
	return a
}

// Reserve：登记外部已占用的标识
func (a *Allocator) Reserve(id string) { a.used[id] = struct{}{} }

func (a *Allocator) seed(prefix string) int {
	hi := 0
	for id := range a.used {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if n := suffixOf(id); n > hi {
			hi = n
		}
	}
	return hi
}

// Next：为原始标识分配合并后的新标识
func (a *Allocator) Next(orig string) string {
	prefix := ""
	if len(orig) > 2 {
		prefix = orig[:len(orig)-2]
	}
	// 前缀过长时截断会吞掉计数位，先裁前缀保留三位后缀
	if len(prefix) > MergeWidth-3 {
		prefix = prefix[:MergeWidth-3]
	}
	n, ok := a.next[prefix]
	if !ok {
		n = a.seed(prefix)
	}
	for {
		n++
		id := fitWidth(fmt.Sprintf("%s%03d", prefix, n), MergeWidth)
		if _, taken := a.used[id]; taken {
			continue
		}
		a.next[prefix] = n
		a.used[id] = struct{}{}
		return id
	}
}
