package middleware

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每秒补充的令牌数（默认 20）
	RequestsPerSecond float64

	// Burst 桶容量（默认 40）
	Burst int

	// KeyFunc 限流 key，默认已认证用户按 uid，匿名请求按客户端 IP
	KeyFunc func(c *qim.Context) string

	// ExcludePaths 排除的路径（不限流）
	ExcludePaths []string

	// Logger 日志实例
	Logger logger.Logger

	// CleanupInterval 过期桶清理间隔（默认 10 分钟）
	CleanupInterval time.Duration

	// BucketExpiry 桶空闲多久后清理（默认 30 分钟）
	BucketExpiry time.Duration

	// Now 时钟，测试中替换
	Now func() time.Time
}

// DefaultRateLimiterConfig 返回默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		CleanupInterval:   10 * time.Minute,
		BucketExpiry:      30 * time.Minute,
	}
}

// UserOrIPKey 已认证请求按 uid 限流，其余按客户端 IP
func UserOrIPKey(c *qim.Context) string {
	if uid := qim.GetContextUid(c); uid != "" {
		return "uid:" + uid
	}
	return "ip:" + c.ClientIP()
}

// bucket 令牌桶
type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter 令牌桶限流器
type RateLimiter struct {
	cfg *RateLimiterConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg *RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = def.BucketExpiry
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = UserOrIPKey
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RateLimiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Allow 消耗 key 对应桶中的一个令牌
func (l *RateLimiter) Allow(key string) bool {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.cfg.RequestsPerSecond
	if limit := float64(l.cfg.Burst); b.tokens > limit {
		b.tokens = limit
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Run 周期清理空闲桶，直到 ctx 结束
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (l *RateLimiter) cleanup() {
	now := l.cfg.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.last) > l.cfg.BucketExpiry {
			delete(l.buckets, key)
		}
	}
}

// Middleware 限流中间件，超限返回 429
func (l *RateLimiter) Middleware() qim.HandlerFunc {
	skipMap := make(map[string]bool, len(l.cfg.ExcludePaths))
	for _, path := range l.cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *qim.Context) {
		if skipMap[c.Request().URL.Path] {
			c.Next()
			return
		}

		key := l.cfg.KeyFunc(c)
		if !l.Allow(key) {
			l.cfg.Logger.WarnContext(c.RequestContext(), "rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request().URL.Path),
				zap.Float64("rate", l.cfg.RequestsPerSecond),
			)
			c.RespondError(errors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
