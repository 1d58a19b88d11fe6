// 批处理入口：读取街区 GeoJSON，执行（可选）城乡合并、隐藏多边形检查、多部件消解与社会经济降尺度，写出结果
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"block-resolver/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	logger.Setup()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "resolve",
		Short:         "Resolve multipart census blocks into single polygons",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.changed = cmd.Flags().Changed
			return run(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.urban, "urban", "u", "", "urban blocks GeoJSON (required)")
	fl.StringVarP(&f.rural, "rural", "r", "", "rural entities GeoJSON; enables urban/rural merge")
	fl.StringVarP(&f.output, "output", "o", "resolved.geojson", "output GeoJSON path")
	fl.StringVar(&f.config, "config", "", "TOML config file")
	fl.StringVar(&f.polyID, "poly-id", "block_id", "identifier field")
	fl.IntSliceVar(&f.communes, "list-coms", nil, "commune codes to keep (urban/rural merge)")
	fl.StringSliceVar(&f.numCols, "num-cols", nil, "numeric attribute columns")
	fl.StringSliceVar(&f.countCols, "count-cols", nil, "count-type columns (summed on merge)")
	fl.BoolVar(&f.strict, "strict", false, "require all parts to form one connected component")
	fl.Float64Var(&f.minLen, "min-len", 5.0, "minimum shared boundary length in metres")
	fl.IntVar(&f.workers, "workers", 1, "parallel proposal workers")
	fl.StringVar(&f.partValues, "part-values", "split", "part attribute policy: split|replicated")
	fl.BoolVar(&f.checkHidden, "check-hidden", false, "report hidden polygons and resolve partial overlaps")
	fl.StringVar(&f.socioProps, "socio-props", "", "commune socioeconomic proportions CSV; enables downscaling")
	fl.StringVar(&f.crs, "crs", "EPSG:32719", "crs name written to the output")
	fl.BoolVar(&f.persist, "persist", false, "store the run in PostgreSQL (PG_* env)")
	_ = cmd.MarkFlagRequired("urban")
	return cmd
}
