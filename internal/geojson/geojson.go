// 包 geojson：街区多边形记录的 GeoJSON FeatureCollection 读写与坐标系检查
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"block-resolver/internal/block"

	"github.com/twpayne/go-geos"
)

var (
	ErrGeographicCRS       = errors.New("geographic crs: a projected metric crs is required")
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)

// 输出字段名
const (
	FieldCommuneID = "commune_id"
	FieldCommune   = "commune"
	FieldOrigID    = "orig_id"
	FieldZoneType  = "zone_type"
	FieldWasSplit  = "was_multipart"
	FieldAbsorbed  = "comb_adj"
	FieldWarnings  = "warnings"
)

// 源数据字段别名（普查分发文件使用大写字段名）
var aliases = map[string]string{
	"MANZENT": "",
	"COMUNA":  FieldCommune,
	"CUT":     FieldCommuneID,
}

type crsProps struct {
	Name string `json:"name"`
}

type CRS struct {
	Type       string   `json:"type"`
	Properties crsProps `json:"properties"`
}

type Feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	CRS      *CRS      `json:"crs,omitempty"`
	Features []Feature `json:"features"`
}

// Options：解码参数
type Options struct {
	IDField string
	NumCols []string
	// Explode 将 MultiPolygon 拆为同标识的多行，每行携带完整属性（对应 replicated 取值策略）
	Explode bool
	// RequireProjected 拒绝地理坐标系输入
	RequireProjected bool
}

// 文档注释：读取 FeatureCollection 并转换为记录
// 背景：MANZENT/COMUNA/CUT 别名映射为标准字段；标识统一为字符串（数值标识按整数格式化）。
// 约束：仅接受 Polygon/MultiPolygon；RequireProjected 时对 crs 成员与坐标范围做检查，地理坐标直接拒绝。
func Decode(r io.Reader, opts Options) ([]*block.Record, error) {
	var fc FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if !strings.EqualFold(fc.Type, "FeatureCollection") {
		return nil, fmt.Errorf("decode feature collection: unexpected type %q", fc.Type)
	}
	if opts.IDField == "" {
		opts.IDField = "block_id"
	}
	if opts.RequireProjected && fc.CRS != nil && IsGeographic(fc.CRS.Properties.Name) {
		return nil, fmt.Errorf("%w: %s", ErrGeographicCRS, fc.CRS.Properties.Name)
	}
	out := make([]*block.Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		recs, err := decodeFeature(f, opts)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, recs...)
	}
	if opts.RequireProjected && fc.CRS == nil && looksGeographic(out) {
		return nil, fmt.Errorf("%w: coordinates fall within lon/lat range", ErrGeographicCRS)
	}
	return out, nil
}

func DecodeFile(path string, opts Options) ([]*block.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func decodeFeature(f Feature, opts Options) ([]*block.Record, error) {
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		if std, ok := aliases[k]; ok {
			if std == "" {
				std = opts.IDField
			}
			k = std
		}
		props[k] = v
	}
	if len(f.Geometry) == 0 || string(f.Geometry) == "null" {
		return nil, fmt.Errorf("%w: null geometry", ErrUnsupportedGeometry)
	}
	g, err := geos.NewGeomFromGeoJSON(string(f.Geometry))
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type())
	}

	rec := &block.Record{
		ID:        getStr(props, opts.IDField),
		OrigID:    getStr(props, FieldOrigID),
		CommuneID: int(toFloat(props[FieldCommuneID])),
		Commune:   getStr(props, FieldCommune),
		ZoneType:  getStr(props, FieldZoneType),
		Geom:      g,
		Values:    make(map[string]float64, len(opts.NumCols)),
		WasSplit:  toFloat(props[FieldWasSplit]) != 0,
		Absorbed:  int(toFloat(props[FieldAbsorbed])),
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("missing identifier field %q", opts.IDField)
	}
	for _, c := range opts.NumCols {
		rec.Values[c] = toFloat(props[c])
	}

	if !opts.Explode || g.TypeID() != geos.TypeIDMultiPolygon || g.NumGeometries() < 2 {
		return []*block.Record{rec}, nil
	}
	parts := make([]*block.Record, 0, g.NumGeometries())
	for i := 0; i < g.NumGeometries(); i++ {
		p := rec.Clone()
		p.Geom = g.Geometry(i).Clone()
		parts = append(parts, p)
	}
	return parts, nil
}

// IsGeographic：按 crs 名称判断是否为经纬度坐标系
func IsGeographic(name string) bool {
	n := strings.ToUpper(name)
	return strings.HasSuffix(n, ":4326") || strings.HasSuffix(n, "CRS84") || strings.HasSuffix(n, "EPSG::4326")
}

// looksGeographic：无 crs 成员时的兜底判断，全部包围盒落在经纬度范围内视为地理坐标
func looksGeographic(recs []*block.Record) bool {
	if len(recs) == 0 {
		return false
	}
	for _, r := range recs {
		if r.Geom == nil || r.Geom.IsEmpty() {
			continue
		}
		b := r.Geom.Bounds()
		if b.MinX < -180 || b.MaxX > 180 || b.MinY < -90 || b.MaxY > 90 {
			return false
		}
	}
	return true
}

// 文档注释：将记录写出为 FeatureCollection
// 背景：属性包含行政区元数据、原始标识谱系、最终标识、was_multipart、comb_adj 与全部数值列；警告非空时一并输出。
// 约束：数值列按名称排序输出，保证相同输入的输出字节一致。
func Encode(w io.Writer, recs []*block.Record, idField string, crsName string) error {
	fc, err := ToCollection(recs, idField, crsName)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	return enc.Encode(fc)
}

func EncodeFile(path string, recs []*block.Record, idField, crsName string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, recs, idField, crsName); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ToCollection(recs []*block.Record, idField, crsName string) (*FeatureCollection, error) {
	if idField == "" {
		idField = "block_id"
	}
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(recs))}
	if crsName != "" {
		fc.CRS = &CRS{Type: "name", Properties: crsProps{Name: crsName}}
	}
	for _, r := range recs {
		f, err := toFeature(r, idField)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.ID, err)
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}

func toFeature(r *block.Record, idField string) (Feature, error) {
	props := map[string]any{
		FieldCommuneID: r.CommuneID,
		FieldCommune:   r.Commune,
		FieldOrigID:    r.OrigID,
		idField:        r.ID,
		FieldZoneType:  r.ZoneType,
		FieldWasSplit:  boolInt(r.WasSplit),
		FieldAbsorbed:  r.Absorbed,
	}
	for _, k := range sortedKeys(r.Values) {
		props[k] = r.Values[k]
	}
	if len(r.Warnings) > 0 {
		props[FieldWarnings] = r.Warnings
	}
	geom := json.RawMessage("null")
	if r.Geom != nil {
		geom = json.RawMessage(r.Geom.ToGeoJSON(-1))
	}
	return Feature{Type: "Feature", Properties: props, Geometry: geom}, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getStr(m map[string]any, k string) string {
	switch v := m[k].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case bool:
		if t {
			return 1
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
