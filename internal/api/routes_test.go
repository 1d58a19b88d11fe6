package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"block-resolver/internal/cache"
	"block-resolver/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(id string, x0 float64, pop int) string {
	x1 := x0 + 10
	return fmt.Sprintf(`{"type":"Feature","properties":{"block_id":%q,"commune_id":13110,"commune":"LA FLORIDA","n_per":%d,"n_vp_ocupada":1,"prom_escolaridad18":12},
	 "geometry":{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,10],[%g,10],[%g,0]]]}}`, id, pop, x0, x1, x1, x0, x0)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"EPSG:32719"}},"features":[` +
		strings.Join(features, ",") + `]}`
}

func newServer(t *testing.T) (*httptest.Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	cfg := config.Default()
	srv := httptest.NewServer(BuildRoutes(Deps{Config: cfg, Cache: cache.New(rc, time.Minute)}))
	t.Cleanup(srv.Close)
	return srv, mr
}

func TestResolveEndpoint(t *testing.T) {
	srv, mr := newServer(t)
	body := collection(
		square("13110011001001", 0, 10),
		square("13110011001001", 20, 20),
		square("13110011001010", 10, 30),
		square("13110011001011", 500, 5),
	)
	resp, err := http.Post(srv.URL+"/resolve", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out resolveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "FeatureCollection", out.Type)
	assert.Equal(t, 1, out.Report.Groups)
	assert.Equal(t, 1, out.Report.Single)
	require.Len(t, out.Report.Outcomes, 1)
	assert.Equal(t, "merged_single", out.Report.Outcomes[0].Tier)
	require.Len(t, out.Features, 2)

	merged := out.Features[1].Properties
	assert.Equal(t, "13110011001001_13110011001010", merged["orig_id"])
	assert.Equal(t, 60.0, merged["n_per"])
	assert.Len(t, merged["block_id"], 15)
	assert.Len(t, mr.Keys(), 1)

	// second identical request is served from cache
	resp2, err := http.Post(srv.URL+"/resolve", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "hit", resp2.Header.Get("x-cache"))
}

func TestResolveEndpointErrors(t *testing.T) {
	srv, _ := newServer(t)
	cases := []struct {
		name, query, body string
		code              int
	}{
		{"bad json", "", "{", http.StatusBadRequest},
		{"bad strict", "?strict=maybe", collection(square("1", 0, 1)), http.StatusBadRequest},
		{"negative min_len", "?min_len=-1", collection(square("1", 0, 1)), http.StatusBadRequest},
		{"geographic", "", strings.Replace(collection(square("1", 0, 1)), "EPSG:32719", "EPSG:4326", 1), http.StatusUnprocessableEntity},
		{"persist without store", "?persist=true", collection(square("1", 0, 1)), http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/resolve"+c.query, "application/json", strings.NewReader(c.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, c.code, resp.StatusCode)
		})
	}
}

func TestRunsWithoutStore(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp2, err := http.Post(srv.URL+"/runs", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}
