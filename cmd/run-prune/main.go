package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"block-resolver/internal/logger"
	"block-resolver/internal/migrate"
	"block-resolver/internal/store"
	"block-resolver/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// 文档注释：消解运行保留窗口
// 背景：保留最近 N 次运行（RUN_KEEP_N，默认 10，--keep 优先），其余运行连同输出多边形一并删除。
// 约束：仅作用于 _block_runs 及其级联表。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	keepN := 10
	if s := os.Getenv("RUN_KEEP_N"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			keepN = n
		}
	}
	cmd := &cobra.Command{
		Use:          "run-prune",
		Short:        "Delete all but the newest resolution runs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keepN < 1 {
				return fmt.Errorf("--keep must be >= 1, got %d", keepN)
			}
			db, err := utils.OpenPostgresFromEnv()
			if err != nil {
				l.Error("db_open_error", "err", err)
				return err
			}
			defer db.Close()
			ctx := context.Background()
			if err := migrate.EnsureSchema(ctx, db); err != nil {
				l.Error("schema_error", "err", err)
				return err
			}
			n, err := store.AttachDB(db).PruneRuns(ctx, keepN)
			if err != nil {
				l.Error("run_prune_error", "err", err)
				return err
			}
			l.Info("run_prune_done", "keep", keepN, "deleted", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepN, "keep", keepN, "number of newest runs to keep")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
