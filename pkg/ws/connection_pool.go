package ws

import (
	"sync"
	"sync/atomic"
)

// ConnectionPool 在线会话表
type ConnectionPool struct {
	sessions sync.Map     // sessionID -> *Session
	count    atomic.Int64 // 连接数
	maxConns int          // 最大连接数
}

// NewConnectionPool 创建连接池
func NewConnectionPool(maxConns int) *ConnectionPool {
	return &ConnectionPool{
		maxConns: maxConns,
	}
}

// Add 添加会话，超过上限时回滚
func (p *ConnectionPool) Add(s *Session) error {
	if _, loaded := p.sessions.LoadOrStore(s.ID(), s); loaded {
		return ErrSessionExists
	}

	if int(p.count.Add(1)) > p.maxConns {
		p.count.Add(-1)
		p.sessions.Delete(s.ID())
		return ErrTooManyConnections
	}

	return nil
}

// Remove 移除会话
func (p *ConnectionPool) Remove(sessionID string) {
	if _, loaded := p.sessions.LoadAndDelete(sessionID); loaded {
		p.count.Add(-1)
	}
}

// Get 获取会话
func (p *ConnectionPool) Get(sessionID string) (*Session, bool) {
	value, ok := p.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	s, ok := value.(*Session)
	return s, ok
}

// Count 获取连接数
func (p *ConnectionPool) Count() int {
	return int(p.count.Load())
}

// Range 遍历所有会话
func (p *ConnectionPool) Range(f func(*Session) bool) {
	p.sessions.Range(func(_, value any) bool {
		s, ok := value.(*Session)
		if !ok {
			return true
		}
		return f(s)
	})
}
