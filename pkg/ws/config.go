package ws

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

// Config 连接管理配置
type Config struct {
	MaxConnections   int
	HandshakeTimeout time.Duration
	MaxMessageSize   int64 // 单帧上限，超出时连接被关闭

	HeartbeatInterval time.Duration // ping 间隔
	HeartbeatTimeout  time.Duration // 读超时，收到 pong 后顺延
	WriteWait         time.Duration

	SendQueueSize    int   // 每个会话的出站队列长度
	MaxInvalidFrames int32 // 累计无法解析的帧数上限

	ReadBufferSize  int
	WriteBufferSize int
	// CheckOrigin 为 nil 时只接受同源或不带 Origin 的请求
	CheckOrigin func(*http.Request) bool

	Metrics Metrics
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    64 << 10,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		WriteWait:         10 * time.Second,
		SendQueueSize:     256,
		MaxInvalidFrames:  10,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var problem string
	switch {
	case c.MaxConnections <= 0:
		problem = fmt.Sprintf("MaxConnections must be positive, got %d", c.MaxConnections)
	case c.MaxMessageSize <= 0:
		problem = fmt.Sprintf("MaxMessageSize must be positive, got %d", c.MaxMessageSize)
	case c.HeartbeatInterval <= 0:
		problem = fmt.Sprintf("HeartbeatInterval must be positive, got %v", c.HeartbeatInterval)
	case c.HeartbeatTimeout <= c.HeartbeatInterval:
		problem = fmt.Sprintf("HeartbeatTimeout (%v) must exceed HeartbeatInterval (%v)", c.HeartbeatTimeout, c.HeartbeatInterval)
	case c.WriteWait <= 0:
		problem = fmt.Sprintf("WriteWait must be positive, got %v", c.WriteWait)
	case c.SendQueueSize <= 0:
		problem = fmt.Sprintf("SendQueueSize must be positive, got %d", c.SendQueueSize)
	case c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0:
		problem = "buffer sizes must be positive"
	default:
		return nil
	}
	return ErrInvalidConfig.WithMessage("ws: " + problem)
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 最大并发连接数
func WithMaxConnections(n int) Option {
	return func(c *Config) { c.MaxConnections = n }
}

// WithHeartbeat 心跳间隔与读超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithMessageSizeLimit 单帧大小上限
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) { c.MaxMessageSize = size }
}

// WithSendQueueSize 出站队列长度
func WithSendQueueSize(size int) Option {
	return func(c *Config) { c.SendQueueSize = size }
}

// WithMetrics 监控实现
func WithMetrics(m Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithOrigins Origin 白名单
// 为空或包含 "*" 时放行全部来源；否则拒绝不在名单内以及不带 Origin 的请求
func WithOrigins(origins ...string) Option {
	return func(c *Config) {
		if len(origins) == 0 || slices.Contains(origins, "*") {
			c.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		c.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

// sameOrigin 非浏览器客户端不带 Origin，直接放行
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
}

func newUpgrader(c *Config) *websocket.Upgrader {
	check := c.CheckOrigin
	if check == nil {
		check = sameOrigin
	}
	return &websocket.Upgrader{
		HandshakeTimeout: c.HandshakeTimeout,
		ReadBufferSize:   c.ReadBufferSize,
		WriteBufferSize:  c.WriteBufferSize,
		CheckOrigin:      check,
	}
}
