package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"block-resolver/internal/logger"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：消解请求为 CPU 密集型，峰值时对入口限速，避免几何运算堆积；按环境变量开关与速率配置。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	tb := &TokenBucket{capacity: qps, tokens: qps, now: time.Now}
	tb.lastSec = tb.now().Unix()
	return tb
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Limit：令牌耗尽时返回 429
func Limit(tb *TokenBucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", r.RemoteAddr)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BodyLimit：限制请求体字节数，超限时读取方得到错误
func BodyLimit(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap：按环境变量组装中间件链（MAX_BODY_MB 默认 64；RATE_LIMIT_ENABLED=true 时启用 RATE_LIMIT_QPS，默认 20）
func Wrap(next http.Handler) http.Handler {
	maxMB := 64
	if s := os.Getenv("MAX_BODY_MB"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			maxMB = n
		}
	}
	h := BodyLimit(int64(maxMB)<<20, next)
	if os.Getenv("RATE_LIMIT_ENABLED") == "true" {
		qps := 20
		if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
			if n, e := strconv.Atoi(s); e == nil && n > 0 {
				qps = n
			}
		}
		h = Limit(NewTokenBucket(qps), h)
	}
	return h
}
