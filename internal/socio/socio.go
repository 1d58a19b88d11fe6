// 包 socio：以教育水平为代理，把行政区级社会经济分层比例降尺度到街区
package socio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"block-resolver/internal/block"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"
)

// 输出列
const (
	ColPopLow    = "pop_low"
	ColPopMiddle = "pop_middle"
	ColPopHigh   = "pop_high"
	ColAdjLow    = "adj_p_low"
	ColAdjMiddle = "adj_p_middle"
	ColAdjHigh   = "adj_p_high"
)

var ErrBadTable = errors.New("invalid socioeconomic proportions table")

// Props：某行政区低、中、高三个阶层的人口比例
type Props struct {
	Low, Middle, High float64
}

// 文档注释：读取行政区比例表
// 背景：CSV 表头需包含 commune_id、p_low、p_middle、p_high（顺序不限，大小写不敏感）。
// 约束：缺列、重复行政区或无法解析的数值均报错。
func LoadProps(r io.Reader) (map[int]Props, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadTable, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"commune_id", "p_low", "p_middle", "p_high"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrBadTable, need)
		}
	}
	out := make(map[int]Props)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadTable, line, err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[col["commune_id"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: commune_id: %v", ErrBadTable, line, err)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate commune %d", ErrBadTable, line, id)
		}
		var p Props
		for _, f := range []struct {
			name string
			dst  *float64
		}{{"p_low", &p.Low}, {"p_middle", &p.Middle}, {"p_high", &p.High}} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[f.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", ErrBadTable, line, f.name, err)
			}
			*f.dst = v
		}
		out[id] = p
	}
	return out, nil
}

func LoadPropsFile(path string) (map[int]Props, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadProps(f)
}

type Options struct {
	PopCol string
	EduCol string
	Alpha  float64
}

func DefaultOptions() Options {
	return Options{PopCol: "n_per", EduCol: "prom_escolaridad18", Alpha: 0.2}
}

// PercentRank：平均名次百分位（并列取平均名次），名次从 1 起，除以样本数
func PercentRank(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg / float64(n)
		}
		i = j + 1
	}
	return out
}

// 文档注释：社会经济降尺度
// 背景：教育百分位偏离中位数的程度经 tanh(3·δ) 平滑后，以 alpha 为强度上调高阶层、下调低阶层比例；中阶层取余量。
// 约束：比例截断到非负后重新归一；人口换算时低、中阶层四舍五入（银行家舍入），高阶层取剩余，三者之和等于人口。
// 行政区缺少比例时记录保持原样并附加 missing_socio_props 警告。返回新记录，输入不被修改。
func Downscale(recs []*block.Record, props map[int]Props, opts Options) []*block.Record {
	edu := make([]float64, len(recs))
	for i, r := range recs {
		edu[i] = r.Value(opts.EduCol)
	}
	pct := PercentRank(edu)

	out := make([]*block.Record, len(recs))
	missing := 0
	for i, r := range recs {
		c := r.Clone()
		out[i] = c
		p, ok := props[r.CommuneID]
		if !ok {
			c.Warn("missing_socio_props")
			metrics.WarningsTotal.WithLabelValues("missing_socio_props").Inc()
			missing++
			continue
		}
		d := opts.Alpha * math.Tanh(3*(pct[i]-0.5))
		high := p.High + d
		low := p.Low - d
		mid := 1 - high - low
		low, mid, high = math.Max(low, 0), math.Max(mid, 0), math.Max(high, 0)
		if s := low + mid + high; s > 0 {
			low, mid, high = low/s, mid/s, high/s
		}
		pop := c.Value(opts.PopCol)
		popLow := math.RoundToEven(pop * low)
		popMid := math.RoundToEven(pop * mid)
		c.Set(ColAdjLow, low)
		c.Set(ColAdjMiddle, mid)
		c.Set(ColAdjHigh, high)
		c.Set(ColPopLow, popLow)
		c.Set(ColPopMiddle, popMid)
		c.Set(ColPopHigh, pop-popLow-popMid)
	}
	if missing > 0 {
		logger.L().Warn("socio_props_missing", "records", missing)
	}
	return out
}
