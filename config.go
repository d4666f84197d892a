package qim

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tokmz/qim/pkg/logger"
)

// ServerConfig HTTP 服务参数
// WebSocket 连接升级后不再受读写超时约束
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// ShutdownConfig 优雅关闭
type ShutdownConfig struct {
	Timeout        time.Duration
	BeforeShutdown func()
	AfterShutdown  func()
}

// Config 引擎配置
type Config struct {
	Mode           string // debug / release / test
	Server         ServerConfig
	Shutdown       ShutdownConfig
	TrustedProxies []string
	Logger         logger.Logger // nil 时静默
}

// Option 配置选项
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Shutdown: ShutdownConfig{Timeout: 10 * time.Second},
	}
}

// WithMode 运行模式
func WithMode(mode string) Option {
	return func(c *Config) { c.Mode = mode }
}

// WithAddr 监听地址，端口为 0 时由系统分配
func WithAddr(addr string) Option {
	return func(c *Config) { c.Server.Addr = addr }
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.Server.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.Server.WriteTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.Server.IdleTimeout = d }
}

// WithShutdownTimeout Shutdown 的 ctx 没有截止时间时使用
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.Shutdown.Timeout = d }
}

// WithBeforeShutdown 停止接收请求前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) { c.Shutdown.BeforeShutdown = fn }
}

// WithAfterShutdown 服务器退出后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) { c.Shutdown.AfterShutdown = fn }
}

// WithTrustedProxies 信任的反向代理，影响 ClientIP 与按 IP 限流
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) { c.TrustedProxies = proxies }
}

// WithLogger 引擎日志
func WithLogger(log logger.Logger) Option {
	return func(c *Config) { c.Logger = log }
}
