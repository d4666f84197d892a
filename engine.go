package qim

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/logger"
)

// Engine HTTP 引擎，承载 REST 接口与 WebSocket 握手
type Engine struct {
	config *Config
	engine *gin.Engine
	log    logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	// gin.SetMode 是全局操作，进程内只应有一个 Engine
	gin.SetMode(config.Mode)
	silenceGin()

	ginEngine := gin.New()
	ginEngine.ContextWithFallback = true

	if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
		config.Logger.Warn("set trusted proxies failed", zap.Error(err))
	}

	return &Engine{
		config: config,
		engine: ginEngine,
		log:    config.Logger,
	}
}

// Default 创建带 Recovery 与 Logger 中间件的 Engine
func Default(opts ...Option) *Engine {
	e := New(opts...)
	e.Use(Recovery(e.log), Logger(e.log))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(wrapAll(middlewares...)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group: e.engine.Group(path, wrapAll(middlewares...)...),
	}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{
		group: &e.engine.RouterGroup,
	}
}

// Handler 底层 http.Handler，测试中直接交给 httptest
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Routes 已注册路由
func (e *Engine) Routes() gin.RoutesInfo {
	return e.engine.Routes()
}

// Start 监听端口并在后台提供服务，监听失败时立即返回
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		return errors.New("qim: engine already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.config.Server.Addr)
	if err != nil {
		return err
	}

	e.server = &http.Server{
		Handler:        e.engine,
		ReadTimeout:    e.config.Server.ReadTimeout,
		WriteTimeout:   e.config.Server.WriteTimeout,
		IdleTimeout:    e.config.Server.IdleTimeout,
		MaxHeaderBytes: e.config.Server.MaxHeaderBytes,
	}
	e.listener = ln
	e.done = make(chan struct{})

	e.printBanner(ln.Addr().String())

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("http server stopped", zap.Error(err))
		}
	}(e.server, e.done)

	return nil
}

// Addr 实际监听地址，未启动时返回配置地址
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.config.Server.Addr
}

// Shutdown 优雅关闭服务器
// ctx 没有截止时间时使用 Shutdown.Timeout
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv, done := e.server, e.done
	e.mu.Unlock()

	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && e.config.Shutdown.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Shutdown.Timeout)
		defer cancel()
	}

	if e.config.Shutdown.BeforeShutdown != nil {
		e.config.Shutdown.BeforeShutdown()
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		e.log.Warn("http server forced to close", zap.Error(err))
	} else {
		<-done
	}

	if e.config.Shutdown.AfterShutdown != nil {
		e.config.Shutdown.AfterShutdown()
	}

	e.log.Info("http server exited")
	return err
}
