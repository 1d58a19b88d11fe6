package migrate

import (
	"context"
	"database/sql"

	"block-resolver/internal/logger"
)

// 背景：首次运行自动创建运行记录、输出多边形与未消解组三张表
// 约束：使用 IF NOT EXISTS，可重复执行；多边形与未消解记录随运行级联删除
var stmts = []string{
	`CREATE TABLE IF NOT EXISTS _block_runs (
        id UUID PRIMARY KEY,
        source TEXT NOT NULL,
        strict BOOLEAN NOT NULL DEFAULT FALSE,
        min_shared_len DOUBLE PRECISION NOT NULL,
        started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        finished_at TIMESTAMPTZ,
        groups_total INT NOT NULL DEFAULT 0,
        merged_direct INT NOT NULL DEFAULT 0,
        merged_single INT NOT NULL DEFAULT 0,
        merged_pair INT NOT NULL DEFAULT 0,
        unresolved INT NOT NULL DEFAULT 0,
        records INT NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS idx_block_runs_started ON _block_runs(started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS _block_polygons (
        run_id UUID NOT NULL REFERENCES _block_runs(id) ON DELETE CASCADE,
        block_id TEXT NOT NULL,
        orig_id TEXT NOT NULL,
        commune_id INT NOT NULL,
        commune TEXT NOT NULL,
        zone_type TEXT NOT NULL,
        was_multipart BOOLEAN NOT NULL,
        comb_adj SMALLINT NOT NULL,
        attrs JSONB NOT NULL,
        warnings TEXT[] NOT NULL DEFAULT '{}',
        geom_wkt TEXT NOT NULL,
        PRIMARY KEY (run_id, block_id)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_block_polygons_orig ON _block_polygons(orig_id)`,
	`CREATE TABLE IF NOT EXISTS _block_unresolved (
        run_id UUID NOT NULL REFERENCES _block_runs(id) ON DELETE CASCADE,
        orig_id TEXT NOT NULL,
        parts INT NOT NULL,
        PRIMARY KEY (run_id, orig_id)
    )`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
