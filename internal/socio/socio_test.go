package socio

import (
	"strings"
	"testing"

	"block-resolver/internal/block"
	"block-resolver/internal/testgeom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProps(t *testing.T) {
	in := "commune_id,p_high,p_middle,p_low\n13110,0.2,0.5,0.3\n13111, 0.1, 0.4, 0.5\n"
	props, err := LoadProps(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, Props{Low: 0.3, Middle: 0.5, High: 0.2}, props[13110])
	assert.Equal(t, Props{Low: 0.5, Middle: 0.4, High: 0.1}, props[13111])
}

func TestLoadPropsErrors(t *testing.T) {
	for name, in := range map[string]string{
		"missing column": "commune_id,p_high,p_low\n13110,0.2,0.3\n",
		"duplicate":      "commune_id,p_high,p_middle,p_low\n1,0,0,1\n1,0,0,1\n",
		"bad number":     "commune_id,p_high,p_middle,p_low\n1,x,0,1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadProps(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrBadTable)
		})
	}
}

func TestPercentRankAverageTies(t *testing.T) {
	assert.Equal(t, []float64{0.25, 0.625, 0.625, 1.0}, PercentRank([]float64{1, 5, 5, 9}))
	assert.Empty(t, PercentRank(nil))
}

func TestDownscale(t *testing.T) {
	mk := func(id string, edu float64) *block.Record {
		return testgeom.Record(id, testgeom.Rect(0, 0, 1, 1), map[string]float64{"n_per": 100, "prom_escolaridad18": edu})
	}
	recs := []*block.Record{mk("a", 8), mk("b", 10), mk("c", 14), mk("d", 16)}
	recs[2].CommuneID = 99999
	props := map[int]Props{13110: {Low: 0.3, Middle: 0.5, High: 0.2}}

	out := Downscale(recs, props, DefaultOptions())
	require.Len(t, out, 4)

	a := out[0]
	assert.Less(t, a.Value(ColAdjHigh), 0.2)
	assert.Greater(t, a.Value(ColAdjLow), 0.3)
	assert.InDelta(t, 1.0, a.Value(ColAdjLow)+a.Value(ColAdjMiddle)+a.Value(ColAdjHigh), 1e-9)
	for _, r := range out[:2] {
		assert.Equal(t, 100.0, r.Value(ColPopLow)+r.Value(ColPopMiddle)+r.Value(ColPopHigh))
	}

	// median record: tanh(0) leaves commune proportions unchanged
	b := out[1]
	assert.InDelta(t, 0.2, b.Value(ColAdjHigh), 1e-9)
	assert.Equal(t, 30.0, b.Value(ColPopLow))
	assert.Equal(t, 50.0, b.Value(ColPopMiddle))
	assert.Equal(t, 20.0, b.Value(ColPopHigh))

	assert.Equal(t, []string{"missing_socio_props"}, out[2].Warnings)
	_, ok := out[2].Values[ColPopLow]
	assert.False(t, ok)
	_, ok = recs[0].Values[ColPopLow]
	assert.False(t, ok)
}

func TestDownscaleClipsNegative(t *testing.T) {
	recs := []*block.Record{
		testgeom.Record("a", testgeom.Rect(0, 0, 1, 1), map[string]float64{"n_per": 10, "prom_escolaridad18": 1}),
		testgeom.Record("b", testgeom.Rect(0, 0, 1, 1), map[string]float64{"n_per": 10, "prom_escolaridad18": 2}),
	}
	props := map[int]Props{13110: {Low: 0.1, Middle: 0.9, High: 0.0}}
	out := Downscale(recs, props, Options{PopCol: "n_per", EduCol: "prom_escolaridad18", Alpha: 0.5})
	b := out[1]
	assert.Equal(t, 0.0, b.Value(ColAdjLow))
	assert.InDelta(t, 1.0, b.Value(ColAdjMiddle)+b.Value(ColAdjHigh), 1e-9)
	assert.Equal(t, 10.0, b.Value(ColPopLow)+b.Value(ColPopMiddle)+b.Value(ColPopHigh))
}
