package cache

import (
	"context"
	"time"
)

// Cache 缓存接口（统一抽象）
//
// ttl 约定：0 使用默认 TTL，负数表示永不过期
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// TTL 返回剩余生存时间，永不过期返回 -1
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Incr 原子自增，不存在的键从 0 开始，且不设置过期时间
	Incr(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Serializer 序列化接口
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
