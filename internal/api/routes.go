// 包 api：集中注册 HTTP API 路由以解耦主入口
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"block-resolver/internal/block"
	"block-resolver/internal/cache"
	"block-resolver/internal/config"
	"block-resolver/internal/geojson"
	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"
	"block-resolver/internal/resolve"
	"block-resolver/internal/store"
)

// Deps：路由依赖；Store 与 Cache 可为 nil（对应功能关闭）
type Deps struct {
	Config *config.Config
	Store  *store.Store
	Cache  *cache.ResultCache
}

type outcomeView struct {
	OrigID   string   `json:"orig_id"`
	Tier     string   `json:"tier"`
	Parts    int      `json:"parts"`
	Absorbed []string `json:"absorbed,omitempty"`
	IDs      []string `json:"ids"`
}

type reportView struct {
	Groups        int           `json:"groups"`
	Direct        int           `json:"merged_direct"`
	Single        int           `json:"merged_single"`
	Pair          int           `json:"merged_pair"`
	Unresolved    int           `json:"unresolved"`
	UnresolvedIDs []string      `json:"unresolved_ids"`
	Outcomes      []outcomeView `json:"outcomes"`
}

func viewOf(rep resolve.Report) reportView {
	v := reportView{
		Groups: rep.Groups, Direct: rep.Direct, Single: rep.Single, Pair: rep.Pair,
		Unresolved: rep.Unresolved, UnresolvedIDs: rep.UnresolvedIDs,
		Outcomes: make([]outcomeView, 0, len(rep.Outcomes)),
	}
	if v.UnresolvedIDs == nil {
		v.UnresolvedIDs = []string{}
	}
	for _, oc := range rep.Outcomes {
		v.Outcomes = append(v.Outcomes, outcomeView{OrigID: oc.OrigID, Tier: oc.Tier.String(), Parts: oc.Parts, Absorbed: oc.Absorbed, IDs: oc.IDs})
	}
	return v
}

type resolveResponse struct {
	RunID    string            `json:"run_id,omitempty"`
	Report   reportView        `json:"report"`
	Type     string            `json:"type"`
	Features []geojson.Feature `json:"features"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// 文档注释：从查询参数构造消解参数
// 背景：strict、min_len、part_values 覆盖配置默认值；非法值返回错误（400）。
func optionsFromQuery(cfg *config.Config, r *http.Request) (resolve.Options, error) {
	opts := cfg.Options()
	q := r.URL.Query()
	if s := q.Get("strict"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return opts, fmt.Errorf("strict: %w", err)
		}
		opts.Contiguity = resolve.ContiguityWeak
		if b {
			opts.Contiguity = resolve.ContiguityStrict
		}
	}
	if s := q.Get("min_len"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return opts, fmt.Errorf("min_len: invalid value %q", s)
		}
		opts.MinSharedLen = f
	}
	if s := q.Get("part_values"); s != "" {
		pv, err := resolve.ParsePartValues(s)
		if err != nil {
			return opts, err
		}
		opts.PartValues = pv
	}
	return opts, nil
}

func cacheOpts(opts resolve.Options, idField string) string {
	return fmt.Sprintf("id=%s&strict=%s&min_len=%g&pv=%s", idField, opts.Contiguity, opts.MinSharedLen, opts.PartValues)
}

// BuildRoutes：独立 ServeMux，便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resolve", d.handleResolve)
	mux.HandleFunc("GET /runs", d.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", d.handleGetRun)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (d Deps) handleResolve(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		metrics.RequestDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	}()
	fail := func(code int, err error) {
		status = code
		logger.L().Warn("resolve_request_error", "request_id", logger.RequestID(r.Context()), "status", code, "err", err)
		writeError(w, code, err)
	}

	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(http.StatusRequestEntityTooLarge, err)
			return
		}
		fail(http.StatusBadRequest, err)
		return
	}
	opts, err := optionsFromQuery(d.Config, r)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	persist := r.URL.Query().Get("persist") == "true"
	if persist && d.Store == nil {
		fail(http.StatusServiceUnavailable, errors.New("persistence disabled"))
		return
	}

	schema := d.Config.BlockSchema()
	key := cache.Key(body, cacheOpts(opts, schema.IDField))
	if !persist {
		if b, ok := d.Cache.Get(ctx, key); ok {
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("cache-control", "no-store")
			w.Header().Set("x-cache", "hit")
			_, _ = w.Write(b)
			return
		}
	}

	res, err := d.run(r, body, schema, opts)
	if err != nil {
		switch {
		case errors.Is(err, geojson.ErrGeographicCRS), errors.Is(err, geojson.ErrUnsupportedGeometry), errors.Is(err, block.ErrInvalidSchema):
			fail(http.StatusUnprocessableEntity, err)
		case ctx.Err() != nil:
			fail(http.StatusServiceUnavailable, err)
		default:
			fail(http.StatusBadRequest, err)
		}
		return
	}
	fc, err := geojson.ToCollection(res.Records, schema.IDField, "")
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	out := resolveResponse{Report: viewOf(res.Report), Type: fc.Type, Features: fc.Features}

	if persist {
		runID, err := d.persist(r, res, opts)
		if err != nil {
			fail(http.StatusInternalServerError, err)
			return
		}
		out.RunID = runID
	}

	b, err := json.Marshal(out)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	if !persist {
		if err := d.Cache.Set(ctx, key, b); err != nil {
			logger.L().Warn("cache_set_error", "err", err)
		}
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}

func (d Deps) run(r *http.Request, body []byte, schema block.Schema, opts resolve.Options) (*resolve.Result, error) {
	recs, err := geojson.Decode(bytes.NewReader(body), geojson.Options{
		IDField:          schema.IDField,
		NumCols:          schema.NumCols,
		Explode:          opts.PartValues == resolve.PartsReplicated,
		RequireProjected: d.Config.Input.RequireProjected,
	})
	if err != nil {
		return nil, err
	}
	rs, err := resolve.New(schema, opts)
	if err != nil {
		return nil, err
	}
	singles, parts := resolve.Relabel(recs)
	return rs.Resolve(r.Context(), singles, parts)
}

func (d Deps) persist(r *http.Request, res *resolve.Result, opts resolve.Options) (string, error) {
	ctx := r.Context()
	id, err := d.Store.BeginRun(ctx, "api:"+logger.RequestID(ctx), opts)
	if err != nil {
		return "", err
	}
	n, err := d.Store.SaveRecords(ctx, id, res.Records)
	if err != nil {
		return "", err
	}
	return id, d.Store.FinishRun(ctx, id, res.Report, n)
}

func (d Deps) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("persistence disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := d.Store.ListRuns(r.Context(), limit)
	if err != nil {
		logger.L().Error("list_runs_error", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (d Deps) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("persistence disabled"))
		return
	}
	run, err := d.Store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logger.L().Error("get_run_error", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
