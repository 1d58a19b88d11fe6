// 包 cache：消解响应的 Redis 缓存，键为请求体与参数的 SHA-256
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"block-resolver/internal/logger"
	"block-resolver/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "resolve:"
	DefaultTTL = time.Hour
)

type ResultCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// New：rc 为 nil 时返回 nil，调用方据此跳过缓存
func New(rc *redis.Client, ttl time.Duration) *ResultCache {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{rc: rc, ttl: ttl}
}

// Key：同一请求体在不同参数下互不命中
func Key(body []byte, opts string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte{0})
	h.Write([]byte(opts))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get：未命中或 Redis 错误均返回 false；错误只记录日志，不影响主流程
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("cache_get_error", "key", key, "err", err)
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return b, true
}

func (c *ResultCache) Set(ctx context.Context, key string, val []byte) error {
	if c == nil {
		return nil
	}
	return c.rc.Set(ctx, key, val, c.ttl).Err()
}
