package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// memoryEntry 内存条目，deadline 为零值表示永不过期
type memoryEntry struct {
	data     []byte
	deadline time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// memoryCache 内存缓存实现
//
// 过期清理由单个后台协程完成：到期时间存放在最小堆中，协程只在最早到期的时间点醒来。
// 读取时会再次核对到期时间，清扫协程尚未处理的过期条目同样不会被返回。
type memoryCache struct {
	mu     sync.RWMutex
	items  map[string]*memoryEntry
	expiry *expiryHeap
	closed bool

	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
	maxEntries int
	resolution time.Duration
	now        func() time.Time

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	evictions atomic.Int64
}

// newMemoryCache 创建内存缓存实例并启动清扫协程
func newMemoryCache(cfg *Config, now func() time.Time) *memoryCache {
	if cfg.Memory == nil {
		cfg.Memory = DefaultMemoryConfig()
	}
	if now == nil {
		now = time.Now
	}

	m := &memoryCache{
		items:      make(map[string]*memoryEntry),
		expiry:     newExpiryHeap(),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
		maxEntries: cfg.Memory.MaxEntries,
		resolution: cfg.Memory.SweepInterval,
		now:        now,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *memoryCache) buildKey(key string) string {
	return m.keyPrefix + key
}

// lookup 读取未过期的条目，过期条目就地淘汰
func (m *memoryCache) lookup(key string) (*memoryEntry, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrCacheClosed
	}
	if !ok {
		return nil, ErrCacheNotFound
	}
	if e.expired(m.now()) {
		m.evictIfSame(key, e)
		return nil, ErrCacheNotFound
	}
	return e, nil
}

// evictIfSame 仅当 key 仍指向 e 时淘汰，避免误删并发写入的新值
func (m *memoryCache) evictIfSame(key string, e *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.items[key]; ok && cur == e {
		m.removeLocked(key)
		m.evictions.Add(1)
	}
}

func (m *memoryCache) removeLocked(key string) {
	delete(m.items, key)
	m.expiry.Remove(key)
}

// Get 获取缓存
func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	e, err := m.lookup(m.buildKey(key))
	if err != nil {
		return err
	}
	if err := m.serializer.Unmarshal(e.data, value); err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	return nil
}

// Set 设置缓存，已存在的键覆盖值与到期时间
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := m.serializer.Marshal(value)
	if err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	return m.store(m.buildKey(key), data, m.deadline(ttl))
}

func (m *memoryCache) deadline(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	if ttl < 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *memoryCache) store(key string, data []byte, deadline time.Time) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrCacheClosed
	}

	m.items[key] = &memoryEntry{data: data, deadline: deadline}
	if deadline.IsZero() {
		m.expiry.Remove(key)
	} else {
		m.expiry.Upsert(key, deadline)
	}

	for m.maxEntries > 0 && len(m.items) > m.maxEntries {
		victim, ok := m.expiry.PopFirst()
		if !ok {
			break
		}
		delete(m.items, victim)
		m.evictions.Add(1)
	}

	head := m.expiry.Peek()
	rearm := head != nil && head.key == key
	m.mu.Unlock()

	if rearm {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.removeLocked(m.buildKey(key))
	}
	return nil
}

// Exists 检查键是否存在（且未过期）
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := m.lookup(m.buildKey(key))
	switch {
	case err == nil:
		return true, nil
	case err == ErrCacheNotFound:
		return false, nil
	default:
		return false, err
	}
}

// TTL 获取键的剩余生存时间
func (m *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	e, err := m.lookup(m.buildKey(key))
	if err != nil {
		return 0, err
	}
	if e.deadline.IsZero() {
		return -1, nil
	}
	return e.deadline.Sub(m.now()), nil
}

// Incr 自增，保留已有键的到期时间
func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrCacheClosed
	}

	var current int64
	var deadline time.Time
	if e, ok := m.items[fullKey]; ok && !e.expired(m.now()) {
		if err := m.serializer.Unmarshal(e.data, &current); err != nil {
			return 0, ErrCacheOperation.WithError(fmt.Errorf("value is not an integer: %w", err))
		}
		deadline = e.deadline
	}

	current++
	data, err := m.serializer.Marshal(current)
	if err != nil {
		return 0, ErrCacheSerialization.WithError(err)
	}
	m.items[fullKey] = &memoryEntry{data: data, deadline: deadline}
	if deadline.IsZero() {
		m.expiry.Remove(fullKey)
	}
	return current, nil
}

// Ping 检查可用性
func (m *memoryCache) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrCacheClosed
	}
	return nil
}

// Close 停止清扫协程并清空数据
func (m *memoryCache) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.items = make(map[string]*memoryEntry)
		m.expiry = newExpiryHeap()
		m.mu.Unlock()

		close(m.done)
		<-m.stopped
	})
	return nil
}

// Len 当前条目数（含尚未清扫的过期条目）
func (m *memoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Evictions 累计淘汰次数
func (m *memoryCache) Evictions() int64 {
	return m.evictions.Load()
}

// sweep 淘汰所有已到期条目，返回下一次到期时间
func (m *memoryCache) sweep() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.expiry.PopDue(m.now()) {
		delete(m.items, key)
		m.evictions.Add(1)
	}
	if head := m.expiry.Peek(); head != nil {
		return head.deadline, true
	}
	return time.Time{}, false
}

// sweepLoop 单一清扫协程
func (m *memoryCache) sweepLoop() {
	defer close(m.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if next, ok := m.sweep(); ok {
			delay := next.Sub(m.now())
			if delay < m.resolution {
				delay = m.resolution
			}
			timer.Reset(delay)
		}

		select {
		case <-m.done:
			return
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// String 返回缓存描述
func (m *memoryCache) String() string {
	return fmt.Sprintf("MemoryCache(prefix=%s, items=%d)", m.keyPrefix, m.Len())
}
