package block

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidSchema = errors.New("invalid attribute schema")

// 文档注释：数值属性模式
// 背景：计数型属性（人口、住户）合并时求和；其余数值属性视为连续型，按人口加权平均。
// 约束：CountCols 必须是 NumCols 的子集；PopCol 必须在 NumCols 中，用作加权基数。
type Schema struct {
	IDField   string
	NumCols   []string
	CountCols []string
	PopCol    string
}

func DefaultSchema() Schema {
	return Schema{
		IDField:   "block_id",
		NumCols:   []string{"n_per", "n_vp_ocupada", "prom_escolaridad18"},
		CountCols: []string{"n_per", "n_vp_ocupada"},
		PopCol:    "n_per",
	}
}

// Validate：处理开始前的配置校验，失败即致命
func (s Schema) Validate() error {
	if s.IDField == "" {
		return fmt.Errorf("%w: empty id field", ErrInvalidSchema)
	}
	num := make(map[string]bool, len(s.NumCols))
	for _, c := range s.NumCols {
		num[c] = true
	}
	var missing []string
	for _, c := range s.CountCols {
		if !num[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: count_cols must be a subset of num_cols: %s", ErrInvalidSchema, strings.Join(missing, ","))
	}
	if s.PopCol == "" || !num[s.PopCol] {
		return fmt.Errorf("%w: pop_col %q not in num_cols", ErrInvalidSchema, s.PopCol)
	}
	return nil
}

// AvgCols：连续型属性（NumCols 中不属于 CountCols 的列），保持声明顺序
func (s Schema) AvgCols() []string {
	count := make(map[string]bool, len(s.CountCols))
	for _, c := range s.CountCols {
		count[c] = true
	}
	var out []string
	for _, c := range s.NumCols {
		if !count[c] {
			out = append(out, c)
		}
	}
	return out
}
