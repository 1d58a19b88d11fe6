package urbanrural

import (
	"testing"

	"block-resolver/internal/block"
	"block-resolver/internal/testgeom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pop(n float64) map[string]float64 { return map[string]float64{"n_per": n} }

func TestCombineFiltersAndTags(t *testing.T) {
	other := testgeom.Record("13401000000001", testgeom.Rect(0, 0, 10, 10), pop(5))
	other.CommuneID = 13401
	urban := []*block.Record{
		testgeom.Record("u1", testgeom.Rect(0, 0, 10, 10), pop(5)),
		testgeom.Record("u2", testgeom.Rect(20, 0, 30, 10), pop(0)),
		other,
	}
	rural := []*block.Record{testgeom.Record("r1", testgeom.Rect(100, 0, 110, 10), pop(3))}

	out := New(nil, "").Combine(urban, rural)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].ID)
	assert.Equal(t, ZoneUrban, out[0].ZoneType)
	assert.Equal(t, "r1", out[1].ID)
	assert.Equal(t, ZoneRural, out[1].ZoneType)
}

func TestCombineSubtractsRural(t *testing.T) {
	urban := []*block.Record{
		testgeom.Record("u1", testgeom.Rect(0, 0, 10, 10), pop(5)),
		testgeom.Record("u2", testgeom.Rect(20, 0, 30, 10), pop(5)),
	}
	rural := []*block.Record{
		testgeom.Record("r1", testgeom.Rect(5, 0, 15, 10), pop(3)),
		testgeom.Record("r2", testgeom.Rect(18, -2, 32, 12), pop(3)),
	}
	out := New(nil, "").Combine(urban, rural)
	require.Len(t, out, 4)
	assert.InDelta(t, 50.0, out[0].Area(), 1e-6)
	assert.Empty(t, out[0].Warnings)
	assert.True(t, out[1].Geom.IsEmpty())
	assert.Equal(t, []string{"empty_after_rural_difference"}, out[1].Warnings)
	// inputs untouched
	assert.InDelta(t, 100.0, urban[0].Area(), 1e-6)
}

func TestCombineKeepsLargestUrbanPart(t *testing.T) {
	urban := []*block.Record{
		testgeom.Record("u1", testgeom.Rect(0, 0, 2, 2), pop(5)),
		testgeom.Record("u1", testgeom.Rect(10, 0, 20, 10), pop(5)),
		testgeom.Record("u2", testgeom.Rect(30, 0, 40, 10), pop(5)),
	}
	out := New([]int{13110}, "n_per").Combine(urban, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].ID)
	assert.InDelta(t, 100.0, out[0].Area(), 1e-6)
	assert.Equal(t, "u2", out[1].ID)
}

func TestCombineRuralStripSplitsUrbanBlock(t *testing.T) {
	urban := []*block.Record{testgeom.Record("u1", testgeom.Rect(0, 0, 30, 10), pop(5))}
	rural := []*block.Record{testgeom.Record("r1", testgeom.Rect(8, -1, 20, 11), pop(3))}

	out := New(nil, "").Combine(urban, rural)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].ID)
	assert.Equal(t, 1, out[0].Geom.NumGeometries())
	assert.InDelta(t, 100.0, out[0].Area(), 1e-6)
	assert.Equal(t, "r1", out[1].ID)
}
