package store

import (
	"context"
	"os"
	"testing"

	"block-resolver/internal/block"
	"block-resolver/internal/migrate"
	"block-resolver/internal/resolve"
	"block-resolver/internal/testgeom"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygonArgs(t *testing.T) {
	r := testgeom.Record("1311001100100100", testgeom.Rect(0, 0, 1, 1), map[string]float64{"n_per": 3})
	args, err := polygonArgs("run", r)
	require.NoError(t, err)
	require.Len(t, args, 11)
	assert.Equal(t, "1311001100100100", args[1])
	assert.JSONEq(t, `{"n_per":3}`, args[8].(string))
	assert.Equal(t, pq.Array([]string{}), args[9])
	assert.Contains(t, args[10], "POLYGON")
}

// openTestStore：需要 PG_TEST_DSN 指向可写的测试库
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, migrate.EnsureSchema(context.Background(), s.DB()))
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, "test", resolve.DefaultOptions())
	require.NoError(t, err)

	recs := []*block.Record{
		testgeom.Record("1311001100100100", testgeom.Rect(0, 0, 1, 1), map[string]float64{"n_per": 3}),
		testgeom.Record("1311001100100200", testgeom.Rect(1, 0, 2, 1), map[string]float64{"n_per": 4}),
	}
	n, err := s.SaveRecords(ctx, id, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rep := resolve.Report{Groups: 1, Unresolved: 1, Outcomes: []resolve.Outcome{{OrigID: "13110011001009", Tier: resolve.Unresolved, Parts: 2}}}
	require.NoError(t, s.FinishRun(ctx, id, rep, n))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Records)
	assert.Equal(t, []string{"13110011001009"}, run.UnresolvedIDs)
	assert.NotNil(t, run.FinishedAt)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
