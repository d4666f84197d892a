package ws

import "sync/atomic"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)

	// 帧指标
	IncrementFrameCount(command string)
	IncrementFrameErrors(command string)
	IncrementInvalidFrames()

	// 鉴权指标
	IncrementAuthFailures()

	// 投递指标
	IncrementDelivered(n int)
	IncrementDroppedMessages()
	IncrementSlowConsumerDisconnects()

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()             {}
func (m *NoopMetrics) DecrementConnections()             {}
func (m *NoopMetrics) SetConnectionCount(count int)      {}
func (m *NoopMetrics) IncrementFrameCount(string)        {}
func (m *NoopMetrics) IncrementFrameErrors(string)       {}
func (m *NoopMetrics) IncrementInvalidFrames()           {}
func (m *NoopMetrics) IncrementAuthFailures()            {}
func (m *NoopMetrics) IncrementDelivered(int)            {}
func (m *NoopMetrics) IncrementDroppedMessages()         {}
func (m *NoopMetrics) IncrementSlowConsumerDisconnects() {}
func (m *NoopMetrics) IncrementReadErrors()              {}
func (m *NoopMetrics) IncrementWriteErrors()             {}

// Counters 基于原子计数的进程内实现，供健康检查输出
type Counters struct {
	connections   atomic.Int64
	current       atomic.Int64
	frames        atomic.Int64
	frameErrors   atomic.Int64
	invalidFrames atomic.Int64
	authFailures  atomic.Int64
	delivered     atomic.Int64
	dropped       atomic.Int64
	slowKicked    atomic.Int64
	readErrors    atomic.Int64
	writeErrors   atomic.Int64
}

// Snapshot 计数快照
type Snapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	CurrentConnections int64 `json:"current_connections"`
	Frames             int64 `json:"frames"`
	FrameErrors        int64 `json:"frame_errors"`
	InvalidFrames      int64 `json:"invalid_frames"`
	AuthFailures       int64 `json:"auth_failures"`
	Delivered          int64 `json:"delivered"`
	Dropped            int64 `json:"dropped"`
	SlowConsumerKicked int64 `json:"slow_consumer_disconnects"`
	ReadErrors         int64 `json:"read_errors"`
	WriteErrors        int64 `json:"write_errors"`
}

// NewCounters 创建计数器
func NewCounters() *Counters { return &Counters{} }

func (m *Counters) IncrementConnections()             { m.connections.Add(1) }
func (m *Counters) DecrementConnections()             {}
func (m *Counters) SetConnectionCount(count int)      { m.current.Store(int64(count)) }
func (m *Counters) IncrementFrameCount(string)        { m.frames.Add(1) }
func (m *Counters) IncrementFrameErrors(string)       { m.frameErrors.Add(1) }
func (m *Counters) IncrementInvalidFrames()           { m.invalidFrames.Add(1) }
func (m *Counters) IncrementAuthFailures()            { m.authFailures.Add(1) }
func (m *Counters) IncrementDelivered(n int)          { m.delivered.Add(int64(n)) }
func (m *Counters) IncrementDroppedMessages()         { m.dropped.Add(1) }
func (m *Counters) IncrementSlowConsumerDisconnects() { m.slowKicked.Add(1) }
func (m *Counters) IncrementReadErrors()              { m.readErrors.Add(1) }
func (m *Counters) IncrementWriteErrors()             { m.writeErrors.Add(1) }

// Snapshot 读取当前计数
func (m *Counters) Snapshot() Snapshot {
	return Snapshot{
		TotalConnections:   m.connections.Load(),
		CurrentConnections: m.current.Load(),
		Frames:             m.frames.Load(),
		FrameErrors:        m.frameErrors.Load(),
		InvalidFrames:      m.invalidFrames.Load(),
		AuthFailures:       m.authFailures.Load(),
		Delivered:          m.delivered.Load(),
		Dropped:            m.dropped.Load(),
		SlowConsumerKicked: m.slowKicked.Load(),
		ReadErrors:         m.readErrors.Load(),
		WriteErrors:        m.writeErrors.Load(),
	}
}
