package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// SingleflightCache 防击穿缓存
// 同一 key 的并发未命中只执行一次加载
type SingleflightCache struct {
	Cache
	group singleflight.Group
}

// NewSingleflightCache 创建防击穿装饰器
func NewSingleflightCache(c Cache) *SingleflightCache {
	return &SingleflightCache{Cache: c}
}

// Forget 丢弃 key 的进行中加载，下一次请求重新执行
func (s *SingleflightCache) Forget(key string) {
	s.group.Forget(key)
}

// rememberOptions 加载选项
type rememberOptions struct {
	cacheIf func(any) bool
}

// RememberOption 加载选项
type RememberOption func(*rememberOptions)

// CacheIf 只有满足条件的结果才写入缓存，不满足时照常返回给调用方
func CacheIf[T any](fn func(T) bool) RememberOption {
	return func(o *rememberOptions) {
		o.cacheIf = func(v any) bool {
			t, ok := v.(T)
			return ok && fn(t)
		}
	}
}

// Remember 标准读穿操作（不防击穿）
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func(context.Context) (T, error), opts ...RememberOption) (T, error) {
	o := applyRemember(opts)

	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}
	result, err := fn(ctx)
	if err != nil {
		return result, err
	}
	if o.cacheIf == nil || o.cacheIf(result) {
		_ = c.Set(ctx, key, result, ttl)
	}
	return result, nil
}

// RememberWithLock 防击穿的读穿操作
// 命中直接返回；未命中时同一 key 只有一个调用方执行 fn，其余等待并共享结果
// 加载失败不写缓存
func RememberWithLock[T any](ctx context.Context, sf *SingleflightCache, key string, ttl time.Duration, fn func(context.Context) (T, error), opts ...RememberOption) (T, error) {
	o := applyRemember(opts)

	var result T
	if err := sf.Get(ctx, key, &result); err == nil {
		return result, nil
	}

	v, err, _ := sf.group.Do(key, func() (any, error) {
		var cached T
		if err := sf.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
		loaded, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if o.cacheIf == nil || o.cacheIf(loaded) {
			_ = sf.Set(ctx, key, loaded, ttl)
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, ErrCacheSerialization.WithMessage("invalid result type")
	}
	return typed, nil
}

func applyRemember(opts []RememberOption) *rememberOptions {
	o := &rememberOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
