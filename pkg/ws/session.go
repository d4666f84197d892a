package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session 一条 WebSocket 连接
type Session struct {
	id      string
	conn    *websocket.Conn
	manager *Manager

	// 出站队列，单一 FIFO
	send chan []byte

	principal atomic.Pointer[Principal]
	state     atomic.Int32

	// 订阅表，只在持有 Router 写锁时修改
	mu   sync.Mutex
	subs map[Destination]string // destination -> subscription id

	// 心跳
	lastPong atomic.Int64 // Unix timestamp

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	writeDone chan struct{}

	invalidFrames atomic.Int32
	config        *Config
}

// newSession 创建会话，conn 为 nil 时只有队列，不启动读写协程
func newSession(ctx context.Context, conn *websocket.Conn, m *Manager, config *Config) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		manager:   m,
		send:      make(chan []byte, config.SendQueueSize),
		subs:      make(map[Destination]string),
		ctx:       ctx,
		cancel:    cancel,
		writeDone: make(chan struct{}),
		config:    config,
	}
	s.lastPong.Store(time.Now().Unix())
	return s
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// Context 会话生命周期 Context，会话关闭时取消
func (s *Session) Context() context.Context { return s.ctx }

// Principal 已挂载的主体，匿名时为 nil
func (s *Session) Principal() *Principal { return s.principal.Load() }

// State 当前状态
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// transition 从 CONNECTING 迁移到握手后的状态，只成功一次
func (s *Session) transition(p *Principal) (SessionState, bool) {
	next := StateAnonymous
	if p != nil {
		next = StateAuthenticated
	}
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(next)) {
		return s.State(), false
	}
	if p != nil {
		s.principal.Store(p)
	}
	return next, true
}

// Subscriptions 当前订阅的路由键
func (s *Session) Subscriptions() []Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Destination, 0, len(s.subs))
	for d := range s.subs {
		out = append(out, d)
	}
	return out
}

// subscriptionByID 按订阅 ID 查找路由键
func (s *Session) subscriptionByID(id string) (Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, sid := range s.subs {
		if sid == id {
			return d, true
		}
	}
	return "", false
}

// run 启动读写协程并等待二者退出
func (s *Session) run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.readPump()
	}()

	go func() {
		defer wg.Done()
		s.writePump()
	}()

	wg.Wait()
	s.Close()
}

// readPump 按到达顺序逐帧处理
func (s *Session) readPump() {
	defer s.Close()

	m := s.manager
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout)); err != nil {
		m.metrics.IncrementReadErrors()
		return
	}
	s.conn.SetPongHandler(func(string) error {
		s.lastPong.Store(time.Now().Unix())
		return s.conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				m.metrics.IncrementReadErrors()
				m.log.Debug("read failed", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			m.metrics.IncrementInvalidFrames()
			if s.invalidFrames.Add(1) > s.config.MaxInvalidFrames {
				return
			}
			_ = s.SendFrame(NewErrorFrame(err, ""))
			continue
		}
		s.invalidFrames.Store(0)

		m.handleFrame(s, frame)
		if s.IsClosed() {
			return
		}
	}
}

// writePump 唯一的写协程
func (s *Session) writePump() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.writeDone)
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.flush()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.config.WriteWait))
			return

		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				s.manager.metrics.IncrementWriteErrors()
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteWait)); err != nil {
				return
			}
		}
	}
}

// flush 关闭前尽量写出已入队的帧（例如 DISCONNECT 的回执）
func (s *Session) flush() {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(msg []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// SendBytes 入队已编码的帧（非阻塞）
func (s *Session) SendBytes(msg []byte) error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case s.send <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// SendFrame 编码并入队
func (s *Session) SendFrame(f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return s.SendBytes(data)
}

// Close 关闭会话
// 出站队列不关闭，写协程通过 ctx 退出，发布方不会向已关闭的 channel 写入
func (s *Session) Close() { s.shutdown(false) }

// evict 发布路径上断开慢消费者，release 在后台执行，发布方不等待事件总线
func (s *Session) evict() { s.shutdown(true) }

func (s *Session) shutdown(background bool) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.state.Store(int32(StateDisconnected))
		s.cancel()

		switch {
		case s.manager == nil:
		case background:
			go s.manager.release(s)
		default:
			s.manager.release(s)
		}
	})
}

// IsClosed 检查是否已关闭
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// RemoteAddr 获取远程地址
func (s *Session) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}
