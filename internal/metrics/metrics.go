package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GroupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blockres_groups_total",
		Help: "Multipart groups resolved, by terminal tier",
	}, []string{"tier"})
	UnresolvedGroupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockres_unresolved_groups_total",
		Help: "Multipart groups left unresolved (kept as separate parts)",
	})
	ClaimRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockres_claim_retries_total",
		Help: "Parallel proposals recomputed because a candidate was already consumed",
	})
	WarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blockres_record_warnings_total",
		Help: "Warnings attached to records, by kind",
	}, []string{"kind"})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockres_resolve_duration_ms",
		Help:    "Resolution run duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000},
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blockres_requests_total",
		Help: "Total /resolve requests by HTTP status",
	}, []string{"status"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockres_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{5, 20, 50, 100, 200, 500, 1000, 5000},
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockres_cache_hits_total",
		Help: "Total redis cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockres_cache_misses_total",
		Help: "Total redis cache misses",
	})
	StoredRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockres_stored_records_total",
		Help: "Total output polygons written to PostgreSQL",
	})
)

func init() {
	prometheus.MustRegister(GroupsTotal)
	prometheus.MustRegister(UnresolvedGroupsTotal)
	prometheus.MustRegister(ClaimRetriesTotal)
	prometheus.MustRegister(WarningsTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(StoredRecordsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：服务进程挂载到 {API_BASE}/metrics；批处理 CLI 只累加不暴露。
func Handler() http.Handler { return promhttp.Handler() }
