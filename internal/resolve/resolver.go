// 包 resolve：多部件多边形消解引擎（连通性判定 → 单邻居吸收 → 两跳双邻居吸收 → 保留拆分）
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
	"block-resolver/internal/dedupe"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Tier：组的终态
type Tier int

const (
	Unresolved Tier = iota
	MergedDirect
	MergedSingle
	MergedPair
)

func (t Tier) String() string {
	switch t {
	case MergedDirect:
		return "merged_direct"
	case MergedSingle:
		return "merged_single"
	case MergedPair:
		return "merged_pair"
	}
	return "unresolved"
}

type Options struct {
	MinSharedLen float64
	Contiguity   ContiguityMode
	PartValues   PartValues
	// Workers > 1 时并行计算各组提案，再按原始标识顺序串行提交
	Workers int
}

func DefaultOptions() Options {
	return Options{MinSharedLen: adjacency.DefaultMinSharedLen, Contiguity: ContiguityWeak, PartValues: PartsSplit, Workers: 1}
}

// Outcome：单个组的消解结果
type Outcome struct {
	OrigID   string
	Tier     Tier
	Parts    int
	Absorbed []string
	IDs      []string
}

// Report：运行级汇总，未消解组单独列出供人工复核
type Report struct {
	Groups        int
	Direct        int
	Single        int
	Pair          int
	Unresolved    int
	UnresolvedIDs []string
	Outcomes      []Outcome
}

type Result struct {
	Records []*block.Record
	Report  Report
}

type Resolver struct {
	schema block.Schema
	opts   Options
	log    *slog.Logger
}

// 文档注释：构造消解器
// 背景：模式与参数在处理开始前校验；计数型列不是数值列子集属于配置错误，直接拒绝。
func New(s block.Schema, opts Options) (*Resolver, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if opts.MinSharedLen < 0 {
		return nil, fmt.Errorf("min_shared_len must be >= 0, got %v", opts.MinSharedLen)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Resolver{schema: s, opts: opts, log: logger.L()}, nil
}

type proposal struct {
	tier  Tier
	cands []int
}

// plan：对当前候选池执行三层策略，只读
func (r *Resolver) plan(g dedupe.Group, pool *Pool) proposal {
	if Contiguous(g.Parts, r.opts.MinSharedLen, r.opts.Contiguity) {
		return proposal{tier: MergedDirect}
	}
	if i, _, ok := FindSingle(g.Parts, pool, r.opts.MinSharedLen); ok {
		return proposal{tier: MergedSingle, cands: []int{i}}
	}
	if p, ok := FindPair(g.Parts, pool, r.opts.MinSharedLen); ok {
		return proposal{tier: MergedPair, cands: []int{p.First, p.Second}}
	}
	return proposal{tier: Unresolved}
}

// 文档注释：消解全部多部件组
// 背景：singles 为候选池（非重复记录），parts 为重标后的多部件记录；组按原始标识升序逐一处理，每组恰好消解一次。
// 约束：候选消耗经 Pool.Claim 原子完成；并行模式下提案基于完整候选池计算，提交时认领失败则对当前池重新计算，结果与串行一致。
// 输出顺序：未被消耗的候选（原顺序）在前，随后按组顺序追加合并记录或未消解部件。
func (r *Resolver) Resolve(ctx context.Context, singles, parts []*block.Record) (*Result, error) {
	t0 := time.Now()
	groups := dedupe.Groups(parts)
	pool := NewPool(singles)

	existing := make([]string, 0, len(singles)+len(parts))
	for _, s := range singles {
		existing = append(existing, s.ID)
	}
	for _, p := range parts {
		existing = append(existing, p.ID)
	}
	alloc := NewAllocator(existing)

	props := make([]proposal, len(groups))
	planned := make([]bool, len(groups))
	if r.opts.Workers > 1 && len(groups) > 1 {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(r.opts.Workers)
		for i := range groups {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				props[i] = r.plan(groups[i], pool)
				planned[i] = true
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	var out []*block.Record
	rep := Report{Groups: len(groups)}
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := props[i]
		if !planned[i] {
			p = r.plan(g, pool)
		}
		if len(p.cands) > 0 && !pool.Claim(p.cands...) {
			metrics.ClaimRetriesTotal.Inc()
			r.log.Debug("resolve_claim_retry", "orig_id", g.OrigID)
			p = r.plan(g, pool)
			if len(p.cands) > 0 && !pool.Claim(p.cands...) {
				return nil, fmt.Errorf("resolve group %s: candidates consumed during commit", g.OrigID)
			}
		}
		recs, oc := r.commit(g, p, pool, alloc)
		out = append(out, recs...)
		rep.Outcomes = append(rep.Outcomes, oc)
		switch p.tier {
		case MergedDirect:
			rep.Direct++
		case MergedSingle:
			rep.Single++
		case MergedPair:
			rep.Pair++
		default:
			rep.Unresolved++
			rep.UnresolvedIDs = append(rep.UnresolvedIDs, g.OrigID)
			r.log.Warn("group_unresolved", "orig_id", g.OrigID, "parts", len(g.Parts))
		}
		metrics.GroupsTotal.WithLabelValues(p.tier.String()).Inc()
		r.log.Debug("resolve_group", "orig_id", g.OrigID, "tier", p.tier.String(), "parts", len(g.Parts), "absorbed", oc.Absorbed)
	}

	res := &Result{Records: append(pool.Remaining(), out...), Report: rep}
	metrics.ResolveDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if rep.Unresolved > 0 {
		metrics.UnresolvedGroupsTotal.Add(float64(rep.Unresolved))
		r.log.Warn("resolve_unresolved_summary", "count", rep.Unresolved, "orig_ids", rep.UnresolvedIDs)
	}
	r.log.Info("resolve_done",
		"groups", rep.Groups,
		"direct", rep.Direct,
		"single", rep.Single,
		"pair", rep.Pair,
		"unresolved", rep.Unresolved,
		"records", len(res.Records),
		"strict", r.opts.Contiguity == ContiguityStrict,
		"duration_ms", time.Since(t0).Milliseconds(),
	)
	return res, nil
}

// commit：按提案生成输出记录；候选已认领
func (r *Resolver) commit(g dedupe.Group, p proposal, pool *Pool, alloc *Allocator) ([]*block.Record, Outcome) {
	oc := Outcome{OrigID: g.OrigID, Tier: p.tier, Parts: len(g.Parts)}
	if p.tier == Unresolved {
		recs := make([]*block.Record, 0, len(g.Parts))
		for _, part := range g.Parts {
			c := part.Clone()
			c.WasSplit = true
			c.Absorbed = 0
			checkGeom(c, "empty_part_geometry")
			recs = append(recs, c)
			oc.IDs = append(oc.IDs, c.ID)
		}
		if r.opts.PartValues == PartsReplicated {
			distributeCounts(recs, g.Parts[0], r.schema.CountCols)
		}
		return recs, oc
	}
	absorbed := make([]*block.Record, 0, len(p.cands))
	for _, i := range p.cands {
		a := pool.Get(i)
		absorbed = append(absorbed, a)
		oc.Absorbed = append(oc.Absorbed, a.ID)
	}
	rec := Merge(g, absorbed, r.schema, r.opts.PartValues)
	rec.ID = alloc.Next(g.OrigID)
	checkGeom(rec, "empty_merged_geometry")
	oc.IDs = []string{rec.ID}
	return []*block.Record{rec}, oc
}

// 文档注释：按面积分摊计数型属性
// 背景：replicated 时每个部件都携带原记录的完整计数，未消解部件直接输出会把人口放大 N 倍；按部件面积占比分摊 src 的计数。
// 约束：最后一个部件取余数，保证分摊后总和与 src 完全一致；总面积为 0 时均分。
func distributeCounts(recs []*block.Record, src *block.Record, cols []string) {
	if len(recs) < 2 {
		return
	}
	areas := make([]float64, len(recs))
	total := 0.0
	for i, rec := range recs {
		areas[i] = rec.Area()
		total += areas[i]
	}
	for _, c := range cols {
		want := src.Value(c)
		acc := 0.0
		for i, rec := range recs {
			if i == len(recs)-1 {
				rec.Set(c, want-acc)
				break
			}
			share := 1.0 / float64(len(recs))
			if total > 0 {
				share = areas[i] / total
			}
			v := want * share
			rec.Set(c, v)
			acc += v
		}
	}
}

func checkGeom(rec *block.Record, kind string) {
	if rec.Geom != nil && !rec.Geom.IsEmpty() {
		return
	}
	rec.Warn(kind)
	metrics.WarningsTotal.WithLabelValues(kind).Inc()
	logger.L().Warn("record_geometry_empty", "id", rec.ID, "orig_id", rec.OrigID, "kind", kind)
}
