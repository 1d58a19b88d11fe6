package main

import (
	"context"
	"fmt"

	"block-resolver/internal/block"
	"block-resolver/internal/config"
	"block-resolver/internal/geojson"
	"block-resolver/internal/hidden"
	"block-resolver/internal/logger"
	"block-resolver/internal/migrate"
	"block-resolver/internal/resolve"
	"block-resolver/internal/socio"
	"block-resolver/internal/store"
	"block-resolver/internal/urbanrural"
	"block-resolver/internal/utils"
)

type flags struct {
	urban, rural, output, config string
	polyID                       string
	communes                     []int
	numCols, countCols           []string
	strict                       bool
	minLen                       float64
	workers                      int
	partValues                   string
	checkHidden                  bool
	socioProps                   string
	crs                          string
	persist                      bool

	changed func(name string) bool
}

func (f flags) set(name string) bool { return f.changed != nil && f.changed(name) }

// loadConfig：配置文件与环境变量之后，命令行显式给出的参数优先
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.set("poly-id") {
		cfg.Schema.IDField = f.polyID
	}
	if f.set("num-cols") {
		cfg.Schema.NumCols = f.numCols
	}
	if f.set("count-cols") {
		cfg.Schema.CountCols = f.countCols
	}
	if f.set("list-coms") {
		cfg.Input.Communes = f.communes
	}
	if f.set("strict") {
		cfg.Resolve.Strict = f.strict
	}
	if f.set("min-len") {
		cfg.Resolve.MinSharedLen = f.minLen
	}
	if f.set("workers") {
		cfg.Resolve.Workers = f.workers
	}
	if f.set("part-values") {
		cfg.Resolve.PartValues = f.partValues
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// 文档注释：批处理流水线
// 背景：读取 → 坐标系检查 →（城乡合并）→（隐藏多边形检查）→ 拆分重标 → 消解 →（社会经济降尺度）→ 写出 →（入库）。
// 约束：配置或 I/O 错误立即返回；未消解组不是错误，只在日志与报告中列出。
func run(ctx context.Context, f flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l := logger.L()
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	schema := cfg.BlockSchema()
	opts := cfg.Options()
	dopts := geojson.Options{
		IDField:          schema.IDField,
		NumCols:          schema.NumCols,
		Explode:          opts.PartValues == resolve.PartsReplicated,
		RequireProjected: cfg.Input.RequireProjected,
	}

	recs, err := geojson.DecodeFile(f.urban, dopts)
	if err != nil {
		return err
	}
	l.Info("input_loaded", "path", f.urban, "records", len(recs))
	if f.rural != "" {
		rural, err := geojson.DecodeFile(f.rural, dopts)
		if err != nil {
			return err
		}
		recs = urbanrural.New(cfg.Input.Communes, schema.PopCol).Combine(recs, rural)
	}
	if f.checkHidden {
		recs = checkHidden(recs)
	}

	rs, err := resolve.New(schema, opts)
	if err != nil {
		return err
	}
	singles, parts := resolve.Relabel(recs)
	res, err := rs.Resolve(ctx, singles, parts)
	if err != nil {
		return err
	}
	out := res.Records
	if f.socioProps != "" {
		props, err := socio.LoadPropsFile(f.socioProps)
		if err != nil {
			return err
		}
		out = socio.Downscale(out, props, cfg.SocioOptions())
	}
	if err := geojson.EncodeFile(f.output, out, schema.IDField, f.crs); err != nil {
		return fmt.Errorf("write %s: %w", f.output, err)
	}
	l.Info("output_written", "path", f.output, "records", len(out))

	if f.persist {
		return persist(ctx, f.urban, out, res.Report, opts)
	}
	return nil
}

func checkHidden(recs []*block.Record) []*block.Record {
	l := logger.L()
	for _, i := range hidden.FindHidden(recs) {
		l.Warn("hidden_polygon", "id", recs[i].ID)
	}
	out, touched := hidden.ResolveOverlaps(recs, hidden.DefaultMinOverlapArea)
	if len(touched) > 0 {
		l.Info("overlaps_adjusted", "polygons", len(touched))
	}
	return out
}

func persist(ctx context.Context, source string, recs []*block.Record, rep resolve.Report, opts resolve.Options) error {
	l := logger.L()
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		return err
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		return err
	}
	st := store.AttachDB(db)
	id, err := st.BeginRun(ctx, source, opts)
	if err != nil {
		return err
	}
	n, err := st.SaveRecords(ctx, id, recs)
	if err != nil {
		return err
	}
	if err := st.FinishRun(ctx, id, rep, n); err != nil {
		return err
	}
	l.Info("run_persisted", "run_id", id, "records", n)
	return nil
}
