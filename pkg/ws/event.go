package ws

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventSessionConnected 连接建立（握手前）
	EventSessionConnected EventType = "session.connected"
	// EventSessionAuthenticated 握手成功并挂载主体
	EventSessionAuthenticated EventType = "session.authenticated"
	// EventSessionAnonymous 握手成功但未认证
	EventSessionAnonymous EventType = "session.anonymous"
	// EventSessionDisconnected 连接断开
	EventSessionDisconnected EventType = "session.disconnected"
)

// lifecycle 生命周期事件，入队时允许短暂阻塞
func (t EventType) lifecycle() bool {
	switch t {
	case EventSessionConnected, EventSessionAuthenticated, EventSessionAnonymous, EventSessionDisconnected:
		return true
	}
	return false
}

// Event 事件
type Event struct {
	Type      EventType
	SessionID string
	Data      any
	Time      time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// lifecycleWait 生命周期事件入队的最长等待
const lifecycleWait = 100 * time.Millisecond

// EventBus 异步事件总线
// 队列满时生命周期事件最多等待 lifecycleWait，其余事件直接丢弃
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler

	queue   chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	once    sync.Once
	dropped atomic.Int64
}

// NewEventBus 创建事件总线
// workers 为 1 时事件按发布顺序处理
func NewEventBus(workers, queueSize int) *EventBus {
	workers = max(workers, 1)
	if queueSize <= 0 {
		queueSize = 1000
	}
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		queue:    make(chan func(), queueSize),
		done:     make(chan struct{}),
	}
	eb.wg.Add(workers)
	for range workers {
		go eb.run()
	}
	return eb
}

func (eb *EventBus) run() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.queue:
			task()
		case <-eb.done:
			eb.drain()
			return
		}
	}
}

// drain 关闭后处理完已入队的任务
func (eb *EventBus) drain() {
	for {
		select {
		case task := <-eb.queue:
			task()
		default:
			return
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(typ EventType, h EventHandler) {
	eb.mu.Lock()
	eb.handlers[typ] = append(eb.handlers[typ], h)
	eb.mu.Unlock()
}

// Publish 异步投递给该类型的全部订阅者
func (eb *EventBus) Publish(e Event) {
	if eb.closed.Load() {
		return
	}
	eb.mu.RLock()
	hs := eb.handlers[e.Type]
	eb.mu.RUnlock()

	wait := e.Type.lifecycle()
	for _, h := range hs {
		if !eb.enqueue(func() { h(e) }, wait) {
			eb.dropped.Add(1)
		}
	}
}

func (eb *EventBus) enqueue(task func(), wait bool) bool {
	select {
	case eb.queue <- task:
		return true
	default:
	}
	if !wait {
		return false
	}
	t := time.NewTimer(lifecycleWait)
	defer t.Stop()
	select {
	case eb.queue <- task:
		return true
	case <-t.C:
		return false
	}
}

// Close 停止 worker，已入队的事件仍会处理
// queue 不关闭，并发 Publish 不会 panic
func (eb *EventBus) Close() {
	eb.once.Do(func() {
		eb.closed.Store(true)
		close(eb.done)
		eb.wg.Wait()
	})
}

// DroppedEvents 丢弃的事件数
func (eb *EventBus) DroppedEvents() int64 { return eb.dropped.Load() }
