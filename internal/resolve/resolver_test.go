package resolve

import (
	"context"
	"sort"
	"testing"

	"block-resolver/internal/block"
	"block-resolver/internal/testgeom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, x0, y0, x1, y1, pop float64) *block.Record {
	return testgeom.Record(id, testgeom.Rect(x0, y0, x1, y1), map[string]float64{
		"n_per": pop, "n_vp_ocupada": pop / 2, edu: pop / 10,
	})
}

// scenario：四个多部件组（直接合并、单邻居、两跳、无法消解）与四个单部件候选
func scenario() []*block.Record {
	return []*block.Record{
		rec("13110011001001", 0, 0, 10, 10, 10),
		rec("13110011001001", 10, 0, 20, 10, 20),
		rec("13110011001002", 100, 0, 110, 10, 30),
		rec("13110011001002", 120, 0, 130, 10, 40),
		rec("13110011001010", 110, 0, 120, 10, 50),
		rec("13110011001003", 200, 0, 210, 10, 60),
		rec("13110011001003", 240, 0, 250, 10, 70),
		rec("13110011001011", 210, 0, 225, 10, 80),
		rec("13110011001012", 225, 0, 240, 10, 90),
		rec("13110011001004", 400, 0, 410, 10, 15),
		rec("13110011001004", 500, 0, 510, 10, 25),
		rec("13110011001013", 1000, 0, 1010, 10, 35),
	}
}

func run(t *testing.T, recs []*block.Record, opts Options) *Result {
	t.Helper()
	r, err := New(block.DefaultSchema(), opts)
	require.NoError(t, err)
	singles, parts := Relabel(recs)
	res, err := r.Resolve(context.Background(), singles, parts)
	require.NoError(t, err)
	return res
}

func sum(recs []*block.Record, col string) float64 {
	s := 0.0
	for _, r := range recs {
		s += r.Value(col)
	}
	return s
}

func TestResolveTiers(t *testing.T) {
	res := run(t, scenario(), DefaultOptions())
	rep := res.Report
	assert.Equal(t, 4, rep.Groups)
	assert.Equal(t, 1, rep.Direct)
	assert.Equal(t, 1, rep.Single)
	assert.Equal(t, 1, rep.Pair)
	assert.Equal(t, 1, rep.Unresolved)
	assert.Equal(t, []string{"13110011001004"}, rep.UnresolvedIDs)

	tiers := map[string]Tier{}
	for _, oc := range rep.Outcomes {
		tiers[oc.OrigID] = oc.Tier
	}
	assert.Equal(t, MergedDirect, tiers["13110011001001"])
	assert.Equal(t, MergedSingle, tiers["13110011001002"])
	assert.Equal(t, MergedPair, tiers["13110011001003"])
	assert.Equal(t, []string{"1311001100101100", "1311001100101200"}, rep.Outcomes[2].Absorbed)

	// 1 untouched single + 3 merged + 2 unresolved parts
	require.Len(t, res.Records, 6)
	assert.Equal(t, "1311001100101300", res.Records[0].ID)
}

func TestResolveConservesCounts(t *testing.T) {
	in := scenario()
	res := run(t, in, DefaultOptions())
	for _, col := range block.DefaultSchema().CountCols {
		assert.InDelta(t, sum(in, col), sum(res.Records, col), 1e-9, col)
	}
}

func TestResolveIdentifiersUniqueAndWidths(t *testing.T) {
	res := run(t, scenario(), DefaultOptions())
	seen := map[string]bool{}
	for _, r := range res.Records {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
	for _, oc := range res.Report.Outcomes {
		for _, id := range oc.IDs {
			if oc.Tier == Unresolved {
				assert.Len(t, id, PlainWidth)
			} else {
				assert.Len(t, id, MergeWidth)
			}
		}
	}
}

func TestResolveMergedRecordFields(t *testing.T) {
	res := run(t, scenario(), DefaultOptions())
	byOrig := map[string]*block.Record{}
	for _, r := range res.Records {
		byOrig[r.OrigID] = r
	}
	direct := byOrig["13110011001001"]
	require.NotNil(t, direct)
	assert.Equal(t, 0, direct.Absorbed)
	assert.Equal(t, 30.0, direct.Value("n_per"))
	assert.InDelta(t, 200.0, direct.Area(), 1e-6)

	single := byOrig["13110011001002_13110011001010"]
	require.NotNil(t, single)
	assert.Equal(t, 1, single.Absorbed)
	assert.Equal(t, 120.0, single.Value("n_per"))

	pair := byOrig["13110011001003_13110011001011_13110011001012"]
	require.NotNil(t, pair)
	assert.Equal(t, 2, pair.Absorbed)
	assert.InDelta(t, 500.0, pair.Area(), 1e-6)

	for _, r := range res.Records {
		if r.OrigID == "13110011001004" {
			assert.True(t, r.WasSplit)
			assert.Equal(t, 0, r.Absorbed)
		}
	}
}

func TestResolveCandidateConsumedOnce(t *testing.T) {
	// both groups could absorb the same neighbour; the lower original id wins
	recs := []*block.Record{
		rec("13110011002001", 0, 0, 10, 10, 1),
		rec("13110011002001", 20, 0, 30, 10, 1),
		rec("13110011002002", 0, 10, 10, 20, 1),
		rec("13110011002002", 20, 10, 30, 20, 1),
		rec("13110011002050", 10, 0, 20, 20, 1),
	}
	res := run(t, recs, DefaultOptions())
	assert.Equal(t, MergedSingle, res.Report.Outcomes[0].Tier)
	assert.Equal(t, Unresolved, res.Report.Outcomes[1].Tier)
}

func TestResolveParallelMatchesSerial(t *testing.T) {
	recs := append(scenario(),
		rec("13110011002001", 0, 100, 10, 110, 1),
		rec("13110011002001", 20, 100, 30, 110, 1),
		rec("13110011002002", 0, 110, 10, 120, 1),
		rec("13110011002002", 20, 110, 30, 120, 1),
		rec("13110011002050", 10, 100, 20, 120, 1),
	)
	serial := run(t, recs, DefaultOptions())
	opts := DefaultOptions()
	opts.Workers = 4
	parallel := run(t, recs, opts)

	ids := func(res *Result) []string {
		var out []string
		for _, r := range res.Records {
			out = append(out, r.ID+"|"+r.OrigID)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, ids(serial), ids(parallel))
	assert.Equal(t, serial.Report.UnresolvedIDs, parallel.Report.UnresolvedIDs)
}

func TestResolveStrictModeFallsThrough(t *testing.T) {
	// two disconnected adjacent pairs, bridged by one neighbour touching all four parts
	recs := []*block.Record{
		rec("13110011003001", 0, 0, 10, 10, 1),
		rec("13110011003001", 0, 10, 10, 20, 1),
		rec("13110011003001", 20, 0, 30, 10, 1),
		rec("13110011003001", 20, 10, 30, 20, 1),
		rec("13110011003050", 10, 0, 20, 20, 1),
	}
	weak := run(t, recs, DefaultOptions())
	assert.Equal(t, MergedDirect, weak.Report.Outcomes[0].Tier)

	opts := DefaultOptions()
	opts.Contiguity = ContiguityStrict
	strict := run(t, recs, opts)
	assert.Equal(t, MergedSingle, strict.Report.Outcomes[0].Tier)
	assert.Equal(t, 5.0, sum(strict.Records, "n_per"))
}

func TestNewRejectsInvalidSchema(t *testing.T) {
	s := block.DefaultSchema()
	s.CountCols = []string{"n_per", "n_hog"}
	_, err := New(s, DefaultOptions())
	assert.ErrorIs(t, err, block.ErrInvalidSchema)
}

func TestRelabelPlainIdentifiers(t *testing.T) {
	singles, parts := Relabel(scenario()[:5])
	require.Len(t, singles, 1)
	assert.Equal(t, "1311001100101000", singles[0].ID)
	assert.False(t, singles[0].WasSplit)
	require.Len(t, parts, 4)
	assert.Equal(t, "1311001100100101", parts[0].ID)
	assert.Equal(t, "1311001100100102", parts[1].ID)
	assert.Equal(t, "13110011001001", parts[1].OrigID)
	assert.True(t, parts[0].WasSplit)
}

func TestResolveConservesCountsReplicated(t *testing.T) {
	// MultiPolygon 拆分后的两个部件各自携带完整属性，彼此不相邻且无候选
	in := []*block.Record{
		rec("13110011001005", 0, 0, 10, 10, 10),
		rec("13110011001005", 500, 0, 530, 10, 10),
	}
	opts := DefaultOptions()
	opts.PartValues = PartsReplicated
	res := run(t, in, opts)
	assert.Equal(t, 1, res.Report.Unresolved)
	require.Len(t, res.Records, 2)

	assert.InDelta(t, 10.0, sum(res.Records, "n_per"), 1e-9)
	assert.InDelta(t, 5.0, sum(res.Records, "n_vp_ocupada"), 1e-9)
	assert.InDelta(t, 2.5, res.Records[0].Value("n_per"), 1e-9)
	assert.InDelta(t, 7.5, res.Records[1].Value("n_per"), 1e-9)
	// 连续型不分摊
	assert.InDelta(t, 1.0, res.Records[1].Value(edu), 1e-9)
}

func TestResolveSplitPartsKeepValues(t *testing.T) {
	in := []*block.Record{
		rec("13110011001005", 0, 0, 10, 10, 4),
		rec("13110011001005", 500, 0, 530, 10, 6),
	}
	res := run(t, in, DefaultOptions())
	require.Len(t, res.Records, 2)
	assert.InDelta(t, 4.0, res.Records[0].Value("n_per"), 1e-9)
	assert.InDelta(t, 6.0, res.Records[1].Value("n_per"), 1e-9)
}

func TestRelabelReportsPaddedCollision(t *testing.T) {
	in := []*block.Record{
		rec("13110101", 0, 0, 10, 10, 5),
		rec("131101", 100, 0, 110, 10, 5),
		rec("131101", 200, 0, 210, 10, 5),
	}
	singles, parts := Relabel(in)
	require.Len(t, singles, 1)
	require.Len(t, parts, 2)
	assert.Equal(t, "1311010100000000", singles[0].ID)
	assert.Equal(t, singles[0].ID, parts[0].ID)
	assert.Empty(t, singles[0].Warnings)
	assert.Equal(t, []string{"id_collision"}, parts[0].Warnings)
	assert.Empty(t, parts[1].Warnings)
}
