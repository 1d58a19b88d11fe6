// 包 store: 提供与 PostgreSQL 的数据访问层，持久化消解运行、输出多边形与未消解组
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"block-resolver/internal/block"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"
	"block-resolver/internal/resolve"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BatchSize：多边形写入每批提交的行数
const BatchSize = 5000

var ErrRunNotFound = errors.New("run not found")

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Run: 一次消解运行的汇总
type Run struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Strict        bool       `json:"strict"`
	MinSharedLen  float64    `json:"min_shared_len"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Groups        int        `json:"groups"`
	Direct        int        `json:"merged_direct"`
	Single        int        `json:"merged_single"`
	Pair          int        `json:"merged_pair"`
	Unresolved    int        `json:"unresolved"`
	Records       int        `json:"records"`
	UnresolvedIDs []string   `json:"unresolved_ids,omitempty"`
}

// BeginRun: 登记新运行并返回运行 ID
func (s *Store) BeginRun(ctx context.Context, source string, opts resolve.Options) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _block_runs(id, source, strict, min_shared_len) VALUES($1,$2,$3,$4)`,
		id, source, opts.Contiguity == resolve.ContiguityStrict, opts.MinSharedLen)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	logger.L().Debug("run_begin", "run_id", id, "source", source)
	return id, nil
}

const insertPolygon = `INSERT INTO _block_polygons(run_id, block_id, orig_id, commune_id, commune, zone_type, was_multipart, comb_adj, attrs, warnings, geom_wkt)
    VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT (run_id, block_id) DO UPDATE SET orig_id=EXCLUDED.orig_id, attrs=EXCLUDED.attrs, warnings=EXCLUDED.warnings, geom_wkt=EXCLUDED.geom_wkt`

// 文档注释：批量写入输出多边形
// 背景：大批量写入分事务提交（每 BatchSize 行一次），避免单个长事务占用过多锁与 WAL。
// 约束：出错时当前批次回滚，已提交批次保留；返回已写入行数。
func (s *Store) SaveRecords(ctx context.Context, runID string, recs []*block.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, insertPolygon)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range recs {
		args, err := polygonArgs(runID, r)
		if err != nil {
			return count, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return count, fmt.Errorf("insert polygon %s: %w", r.ID, err)
		}
		count++
		if count%BatchSize == 0 {
			if err := tx.Commit(); err != nil {
				return count, err
			}
			metrics.StoredRecordsTotal.Add(BatchSize)
			logger.L().Debug("store_batch_commit", "run_id", runID, "rows", count)
			tx, err = s.db.BeginTx(ctx, nil)
			if err != nil {
				return count, err
			}
			stmt, err = tx.PrepareContext(ctx, insertPolygon)
			if err != nil {
				return count, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return count, err
	}
	metrics.StoredRecordsTotal.Add(float64(count % BatchSize))
	return count, nil
}

func polygonArgs(runID string, r *block.Record) ([]any, error) {
	attrs, err := json.Marshal(r.Values)
	if err != nil {
		return nil, fmt.Errorf("marshal attrs %s: %w", r.ID, err)
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	wkt := "POLYGON EMPTY"
	if r.Geom != nil {
		wkt = r.Geom.ToWKT()
	}
	return []any{runID, r.ID, r.OrigID, r.CommuneID, r.Commune, r.ZoneType, r.WasSplit, r.Absorbed,
		string(attrs), pq.Array(warnings), wkt}, nil
}

// FinishRun: 写入运行汇总与未消解组
func (s *Store) FinishRun(ctx context.Context, runID string, rep resolve.Report, records int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE _block_runs SET finished_at=now(), groups_total=$2, merged_direct=$3, merged_single=$4, merged_pair=$5, unresolved=$6, records=$7 WHERE id=$1`,
		runID, rep.Groups, rep.Direct, rep.Single, rep.Pair, rep.Unresolved, records)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	for _, oc := range rep.Outcomes {
		if oc.Tier != resolve.Unresolved {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _block_unresolved(run_id, orig_id, parts) VALUES($1,$2,$3) ON CONFLICT DO NOTHING`,
			runID, oc.OrigID, oc.Parts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("run_finished", "run_id", runID, "records", records, "unresolved", rep.Unresolved)
	return nil
}

const selectRun = `SELECT id, source, strict, min_shared_len, started_at, finished_at, groups_total, merged_direct, merged_single, merged_pair, unresolved, records FROM _block_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var fin sql.NullTime
	if err := sc.Scan(&r.ID, &r.Source, &r.Strict, &r.MinSharedLen, &r.StartedAt, &fin,
		&r.Groups, &r.Direct, &r.Single, &r.Pair, &r.Unresolved, &r.Records); err != nil {
		return nil, err
	}
	if fin.Valid {
		t := fin.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetRun: 读取运行汇总及其未消解组原始标识
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT orig_id FROM _block_unresolved WHERE run_id=$1 ORDER BY orig_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var oid string
		if err := rows.Scan(&oid); err != nil {
			return nil, err
		}
		r.UnresolvedIDs = append(r.UnresolvedIDs, oid)
	}
	return r, rows.Err()
}

// ListRuns: 按开始时间倒序列出最近的运行
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// 文档注释：保留最近 keepN 次运行
// 背景：输出多边形体量大，旧运行需定期清理；多边形与未消解记录经外键级联删除。
// 约束：keepN 小于 1 时按 1 处理；返回删除的运行数。
func (s *Store) PruneRuns(ctx context.Context, keepN int) (int64, error) {
	if keepN < 1 {
		keepN = 1
	}
	res, err := s.db.ExecContext(ctx, `WITH ranked AS (
            SELECT id, ROW_NUMBER() OVER(ORDER BY started_at DESC) AS rn FROM _block_runs
        )
        DELETE FROM _block_runs r USING ranked k
        WHERE r.id = k.id AND k.rn > $1`, keepN)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
