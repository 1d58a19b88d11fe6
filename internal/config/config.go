// 包 config：消解流程配置，TOML 文件 + 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"block-resolver/internal/adjacency"
	"block-resolver/internal/block"
	"block-resolver/internal/resolve"
	"block-resolver/internal/socio"
	"block-resolver/internal/urbanrural"

	"github.com/pelletier/go-toml/v2"
)

type SchemaConfig struct {
	IDField   string   `toml:"id_field"`
	NumCols   []string `toml:"num_cols"`
	CountCols []string `toml:"count_cols"`
	PopCol    string   `toml:"pop_col"`
}

type ResolveConfig struct {
	MinSharedLen float64 `toml:"min_shared_len"`
	Strict       bool    `toml:"strict"`
	PartValues   string  `toml:"part_values"`
	Workers      int     `toml:"workers"`
}

type InputConfig struct {
	Communes         []int `toml:"communes"`
	RequireProjected bool  `toml:"require_projected"`
}

type SocioConfig struct {
	Alpha  float64 `toml:"alpha"`
	EduCol string  `toml:"edu_col"`
}

type Config struct {
	Schema  SchemaConfig  `toml:"schema"`
	Resolve ResolveConfig `toml:"resolve"`
	Input   InputConfig   `toml:"input"`
	Socio   SocioConfig   `toml:"socio"`
}

func Default() *Config {
	s := block.DefaultSchema()
	so := socio.DefaultOptions()
	return &Config{
		Schema: SchemaConfig{IDField: s.IDField, NumCols: s.NumCols, CountCols: s.CountCols, PopCol: s.PopCol},
		Resolve: ResolveConfig{
			MinSharedLen: adjacency.DefaultMinSharedLen,
			PartValues:   resolve.PartsSplit.String(),
			Workers:      1,
		},
		Input: InputConfig{Communes: append([]int(nil), urbanrural.DefaultCommunes...), RequireProjected: true},
		Socio: SocioConfig{Alpha: so.Alpha, EduCol: so.EduCol},
	}
}

// 文档注释：加载配置
// 背景：path 为空时只用默认值；文件中未出现的键保留默认值；随后应用环境变量覆盖并校验。
// 约束：文件不存在、解析失败或校验失败均返回错误，调用方应在处理开始前退出。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BLOCK_ID_FIELD"); v != "" {
		c.Schema.IDField = v
	}
	if v := os.Getenv("RESOLVE_MIN_SHARED_LEN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RESOLVE_MIN_SHARED_LEN: %w", err)
		}
		c.Resolve.MinSharedLen = f
	}
	if v := os.Getenv("RESOLVE_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RESOLVE_STRICT: %w", err)
		}
		c.Resolve.Strict = b
	}
	if v := os.Getenv("RESOLVE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RESOLVE_WORKERS: %w", err)
		}
		c.Resolve.Workers = n
	}
	if v := os.Getenv("RESOLVE_PART_VALUES"); v != "" {
		c.Resolve.PartValues = strings.ToLower(v)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.BlockSchema().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Resolve.MinSharedLen < 0 {
		errs = append(errs, fmt.Errorf("resolve.min_shared_len must be >= 0, got %v", c.Resolve.MinSharedLen))
	}
	if c.Resolve.Workers < 1 {
		errs = append(errs, fmt.Errorf("resolve.workers must be >= 1, got %d", c.Resolve.Workers))
	}
	if _, err := resolve.ParsePartValues(c.Resolve.PartValues); err != nil {
		errs = append(errs, err)
	}
	if c.Socio.Alpha < 0 {
		errs = append(errs, fmt.Errorf("socio.alpha must be >= 0, got %v", c.Socio.Alpha))
	}
	return errors.Join(errs...)
}

func (c *Config) BlockSchema() block.Schema {
	return block.Schema{
		IDField:   c.Schema.IDField,
		NumCols:   c.Schema.NumCols,
		CountCols: c.Schema.CountCols,
		PopCol:    c.Schema.PopCol,
	}
}

// Options：转换为消解参数；PartValues 已在 Validate 中校验
func (c *Config) Options() resolve.Options {
	pv, _ := resolve.ParsePartValues(c.Resolve.PartValues)
	mode := resolve.ContiguityWeak
	if c.Resolve.Strict {
		mode = resolve.ContiguityStrict
	}
	return resolve.Options{
		MinSharedLen: c.Resolve.MinSharedLen,
		Contiguity:   mode,
		PartValues:   pv,
		Workers:      c.Resolve.Workers,
	}
}

func (c *Config) SocioOptions() socio.Options {
	return socio.Options{PopCol: c.Schema.PopCol, EduCol: c.Socio.EduCol, Alpha: c.Socio.Alpha}
}
