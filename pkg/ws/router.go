package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
)

// SlowConsumerPolicy 出站队列满时的处理方式
type SlowConsumerPolicy string

const (
	// SlowConsumerDrop 丢弃该会话本次的信封
	SlowConsumerDrop SlowConsumerPolicy = "drop"
	// SlowConsumerDisconnect 断开该会话
	SlowConsumerDisconnect SlowConsumerPolicy = "disconnect"
)

// ParseSlowConsumerPolicy 解析慢消费者策略，空串为 drop
func ParseSlowConsumerPolicy(s string) (SlowConsumerPolicy, error) {
	switch p := SlowConsumerPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", SlowConsumerDrop:
		return SlowConsumerDrop, nil
	case SlowConsumerDisconnect:
		return p, nil
	}
	return "", ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: unknown slow consumer policy %q", s))
}

// Router 主题路由器
// 维护路由键到会话的订阅关系，把信封投递到每个订阅者的出站队列
type Router struct {
	mu   sync.RWMutex
	subs map[Destination]map[string]*Session

	policy  atomic.Value // SlowConsumerPolicy
	metrics Metrics
	log     logger.Logger
	relay   Relay
}

// RouterOption 路由器选项
type RouterOption func(*Router)

// WithRouterLogger 设置日志
func WithRouterLogger(l logger.Logger) RouterOption {
	return func(r *Router) {
		r.log = l
	}
}

// WithRouterMetrics 设置监控
func WithRouterMetrics(m Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithSlowConsumer 设置慢消费者策略
func WithSlowConsumer(p SlowConsumerPolicy) RouterOption {
	return func(r *Router) {
		r.policy.Store(p)
	}
}

// WithRelay 设置跨节点中继
func WithRelay(relay Relay) RouterOption {
	return func(r *Router) {
		r.relay = relay
	}
}

// NewRouter 创建路由器
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subs:    make(map[Destination]map[string]*Session),
		metrics: &NoopMetrics{},
		log:     logger.NewNop(),
	}
	r.policy.Store(SlowConsumerDrop)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSlowConsumerPolicy 运行期切换策略
func (r *Router) SetSlowConsumerPolicy(p SlowConsumerPolicy) {
	r.policy.Store(p)
}

// SlowConsumerPolicy 当前策略
func (r *Router) SlowConsumerPolicy() SlowConsumerPolicy {
	return r.policy.Load().(SlowConsumerPolicy)
}

// Subscribe 订阅，重复订阅只更新订阅 ID
func (r *Router) Subscribe(s *Session, dest Destination, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 与 RemoveSession 共用写锁，关闭后的会话不会被重新登记
	if s.IsClosed() {
		return ErrConnectionClosed
	}

	set, ok := r.subs[dest]
	if !ok {
		set = make(map[string]*Session)
		r.subs[dest] = set
	}
	set[s.id] = s

	s.mu.Lock()
	s.subs[dest] = subscriptionID
	s.mu.Unlock()
	return nil
}

// Unsubscribe 取消订阅，返回此前是否已订阅
func (r *Router) Unsubscribe(s *Session, dest Destination) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(s, dest)
}

func (r *Router) unsubscribeLocked(s *Session, dest Destination) bool {
	s.mu.Lock()
	_, ok := s.subs[dest]
	delete(s.subs, dest)
	s.mu.Unlock()

	if set, exists := r.subs[dest]; exists {
		delete(set, s.id)
		if len(set) == 0 {
			delete(r.subs, dest)
		}
	}
	return ok
}

// RemoveSession 丢弃会话的全部订阅
func (r *Router) RemoveSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.mu.Lock()
	dests := make([]Destination, 0, len(s.subs))
	for d := range s.subs {
		dests = append(dests, d)
	}
	s.mu.Unlock()

	for _, d := range dests {
		r.unsubscribeLocked(s, d)
	}
}

// Subscribers 当前订阅者数量
func (r *Router) Subscribers(dest Destination) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[dest])
}

// Publish 向路由键发布信封，返回成功入队的会话数
// 没有订阅者时什么也不做；单个会话投递失败不影响其他会话，也不返回给调用方
func (r *Router) Publish(dest Destination, payload []byte) int {
	n := r.deliver(dest, payload)
	if r.relay != nil {
		r.relay.Forward(dest, payload)
	}
	return n
}

// PublishToUser 向用户私有队列发布
func (r *Router) PublishToUser(userID string, payload []byte) int {
	return r.Publish(UserQueue(userID), payload)
}

// deliver 只投递到本节点的订阅者
func (r *Router) deliver(dest Destination, payload []byte) int {
	// 读锁内只做快照，投递在锁外进行
	r.mu.RLock()
	set := r.subs[dest]
	if len(set) == 0 {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]*Session, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	frame, err := encodeMessageFrame(dest, payload)
	if err != nil {
		r.log.Error("encode message frame failed", zap.String("destination", string(dest)), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, s := range targets {
		err := s.SendBytes(frame)
		if err == nil {
			delivered++
			continue
		}
		r.onDeliveryFailure(s, dest, err)
	}
	r.metrics.IncrementDelivered(delivered)
	return delivered
}

func (r *Router) onDeliveryFailure(s *Session, dest Destination, err error) {
	if !errors.Is(err, ErrChannelFull) {
		// 会话已关闭，等待 RemoveSession 清理
		return
	}

	r.metrics.IncrementDroppedMessages()
	if r.SlowConsumerPolicy() == SlowConsumerDisconnect {
		r.metrics.IncrementSlowConsumerDisconnects()
		r.log.Warn("slow consumer disconnected",
			zap.String("session_id", s.id),
			zap.String("destination", string(dest)))
		s.evict()
		r.RemoveSession(s)
		return
	}
	r.log.Warn("envelope dropped for slow consumer",
		zap.String("session_id", s.id),
		zap.String("destination", string(dest)))
}

// Start 启动中继订阅，收到的远端信封只投递给本节点
func (r *Router) Start(ctx context.Context) error {
	if r.relay == nil {
		return nil
	}
	return r.relay.Start(ctx, func(dest Destination, payload []byte) {
		r.deliver(dest, payload)
	})
}

// Stop 停止中继
func (r *Router) Stop() error {
	if r.relay == nil {
		return nil
	}
	return r.relay.Close()
}
