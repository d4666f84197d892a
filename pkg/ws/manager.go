package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/tracing"
)

// Manager WebSocket 核心管理器
// 负责连接生命周期，把入站帧交给闸门、路由器与分发器
type Manager struct {
	// 核心组件
	pool       *ConnectionPool
	router     *Router
	gate       *Gate
	dispatcher *Dispatcher
	events     *EventBus

	// 配置
	config   *Config
	upgrader *websocket.Upgrader

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 监控
	metrics Metrics
	log     logger.Logger
}

// NewManager 创建管理器
func NewManager(router *Router, gate *Gate, log logger.Logger, opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	gate.SetMetrics(config.Metrics)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		pool:       NewConnectionPool(config.MaxConnections),
		router:     router,
		gate:       gate,
		dispatcher: NewDispatcher(),
		events:     NewEventBus(1, 1000),
		config:     config,
		upgrader:   newUpgrader(config),
		ctx:        ctx,
		cancel:     cancel,
		metrics:    config.Metrics,
		log:        log,
	}

	m.setupEventHandlers()

	return m, nil
}

// Router 主题路由器
func (m *Manager) Router() *Router { return m.router }

// Gate 连接闸门
func (m *Manager) Gate() *Gate { return m.gate }

// Dispatcher SEND 分发器
func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

// Events 事件总线
func (m *Manager) Events() *EventBus { return m.events }

// Start 冻结分发器，此后不可再注册处理器
func (m *Manager) Start() {
	m.dispatcher.Freeze()
}

// Shutdown 优雅关闭
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	var closeWg sync.WaitGroup
	m.pool.Range(func(s *Session) bool {
		closeWg.Add(1)
		go func(s *Session) {
			defer closeWg.Done()
			s.Close()
		}(s)
		return true
	})
	closeWg.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	// 最后关闭事件总线，断开事件仍能被观察到
	m.events.Close()
	return err
}

// HandleUpgrade 处理 WebSocket 升级
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	// 升级前检查容量，此时还能返回 HTTP 503
	if m.pool.Count() >= m.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return ErrTooManyConnections
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	s := newSession(m.ctx, conn, m, m.config)

	// 并发升级时仍可能超限，以关闭码告知客户端
	if err := m.pool.Add(s); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"),
			time.Now().Add(m.config.WriteWait))
		_ = conn.Close()
		return err
	}

	m.events.Publish(Event{
		Type:      EventSessionConnected,
		SessionID: s.id,
		Data:      s.RemoteAddr(),
		Time:      time.Now(),
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run()
	}()

	return nil
}

// Count 在线连接数
func (m *Manager) Count() int {
	return m.pool.Count()
}

// Session 按 ID 获取会话
func (m *Manager) Session(id string) (*Session, bool) {
	return m.pool.Get(id)
}

// handleFrame 处理一帧；同一会话的帧在读协程内串行执行
func (m *Manager) handleFrame(s *Session, f *Frame) {
	m.metrics.IncrementFrameCount(string(f.Command))

	ctx := s.ctx
	if err := m.gate.Admit(ctx, s, f); err != nil {
		m.fail(s, f, err)
		if errors.Is(err, ErrUnauthenticated) {
			s.Close()
		}
		return
	}
	if p := s.Principal(); p != nil {
		ctx = logger.WithUID(ctx, p.UserID)
	}

	var err error
	switch f.Command {
	case CommandConnect:
		m.onConnect(s)
		return
	case CommandSubscribe:
		err = m.onSubscribe(ctx, s, f)
	case CommandUnsubscribe:
		m.onUnsubscribe(s, f)
	case CommandSend:
		err = m.onSend(ctx, s, f)
	case CommandDisconnect:
		m.receipt(s, f)
		s.Close()
		return
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		m.fail(s, f, err)
		return
	}
	m.receipt(s, f)
}

func (m *Manager) onConnect(s *Session) {
	p := s.Principal()
	_ = s.SendFrame(NewConnectedFrame(s.id, p))

	typ := EventSessionAnonymous
	if p != nil {
		typ = EventSessionAuthenticated
	}
	m.events.Publish(Event{Type: typ, SessionID: s.id, Data: p, Time: time.Now()})
}

func (m *Manager) onSubscribe(ctx context.Context, s *Session, f *Frame) error {
	dest, err := ResolveSubscription(f.Destination, s.Principal())
	if err != nil {
		return err
	}
	if err := m.gate.AuthorizeSubscribe(ctx, s, dest); err != nil {
		return err
	}

	subID, ok := f.Header(HeaderSubscription)
	if !ok {
		subID = f.Destination
	}
	return m.router.Subscribe(s, dest, subID)
}

// onUnsubscribe 按订阅 ID 或路径取消，未订阅时静默忽略
func (m *Manager) onUnsubscribe(s *Session, f *Frame) {
	if id, ok := f.Header(HeaderSubscription); ok {
		if dest, found := s.subscriptionByID(id); found {
			m.router.Unsubscribe(s, dest)
			return
		}
	}
	if dest, err := ResolveSubscription(f.Destination, s.Principal()); err == nil {
		m.router.Unsubscribe(s, dest)
	}
}

func (m *Manager) onSend(ctx context.Context, s *Session, f *Frame) (err error) {
	if err := m.gate.AuthorizeSend(s); err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "ws.send",
		attribute.String("ws.session_id", s.id),
		attribute.String("ws.destination", f.Destination),
	)
	defer func() { tracing.Finish(span, err) }()

	return m.dispatcher.Dispatch(ctx, s, f)
}

func (m *Manager) receipt(s *Session, f *Frame) {
	if f.Receipt != "" {
		_ = s.SendFrame(NewReceiptFrame(f.Receipt))
	}
}

func (m *Manager) fail(s *Session, f *Frame, err error) {
	m.metrics.IncrementFrameErrors(string(f.Command))
	if e := errors.From(err); e == nil || e.HttpCode >= http.StatusInternalServerError {
		m.log.Error("frame failed",
			zap.String("session_id", s.id),
			zap.String("command", string(f.Command)),
			zap.String("destination", f.Destination),
			zap.Error(err))
	} else {
		m.log.Debug("frame refused",
			zap.String("session_id", s.id),
			zap.String("command", string(f.Command)),
			zap.Error(err))
	}
	_ = s.SendFrame(NewErrorFrame(err, f.Receipt))
}

// release 会话关闭后的清理
func (m *Manager) release(s *Session) {
	m.pool.Remove(s.id)
	m.router.RemoveSession(s)

	m.events.Publish(Event{
		Type:      EventSessionDisconnected,
		SessionID: s.id,
		Time:      time.Now(),
	})
}

// setupEventHandlers 设置事件处理器
func (m *Manager) setupEventHandlers() {
	m.events.Subscribe(EventSessionConnected, func(Event) {
		m.metrics.IncrementConnections()
		m.metrics.SetConnectionCount(m.pool.Count())
	})

	m.events.Subscribe(EventSessionDisconnected, func(Event) {
		m.metrics.DecrementConnections()
		m.metrics.SetConnectionCount(m.pool.Count())
	})
}
