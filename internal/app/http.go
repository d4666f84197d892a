package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/api"
	"github.com/tokmz/qim/internal/auth"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/middleware"
	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// httpModule HTTP 服务与路由注册
func httpModule() fx.Option {
	return fx.Module("http",
		fx.Provide(
			provideEngine,
			provideHandler,
		),
		fx.Invoke(registerRoutes),
	)
}

func provideEngine(s *config.Settings, log logger.Logger) *qim.Engine {
	httpLog := log.Named("http")
	e := qim.New(
		qim.WithMode(s.Server.Mode),
		qim.WithAddr(s.Server.Addr),
		qim.WithReadTimeout(s.Server.ReadTimeout),
		qim.WithWriteTimeout(s.Server.WriteTimeout),
		qim.WithIdleTimeout(s.Server.IdleTimeout),
		qim.WithShutdownTimeout(s.Server.ShutdownTimeout),
		qim.WithTrustedProxies(s.Server.TrustedProxies...),
		qim.WithLogger(httpLog),
	)
	e.Use(
		qim.Recovery(httpLog),
		middleware.Tracing(),
		qim.Logger(httpLog, "/healthz"),
		middleware.CORS(middleware.CORSWithOrigins(s.Server.CORSOrigins)),
	)
	return e
}

func provideHandler(svc *chat.Service, st store.Store, manager *ws.Manager, counters *ws.Counters, log logger.Logger) *api.Handler {
	return api.New(svc, st, manager, counters, log.Named("api"))
}

// registerRoutes 注册 REST 与 WebSocket 处理器后冻结分发器，再交给生命周期启停
func registerRoutes(
	lc fx.Lifecycle,
	s *config.Settings,
	e *qim.Engine,
	h *api.Handler,
	manager *ws.Manager,
	verifier *auth.Verifier,
	log logger.Logger,
) error {
	var extra []qim.HandlerFunc
	var limiter *middleware.RateLimiter
	if s.RateLimit.Enabled {
		cfg := middleware.DefaultRateLimiterConfig()
		if s.RateLimit.RequestsPerSecond > 0 {
			cfg.RequestsPerSecond = s.RateLimit.RequestsPerSecond
		}
		if s.RateLimit.Burst > 0 {
			cfg.Burst = s.RateLimit.Burst
		}
		cfg.Logger = log.Named("ratelimit")
		limiter = middleware.NewRateLimiter(cfg)
		extra = append(extra, limiter.Middleware())
	}

	h.Register(e, s.WS.Path, middleware.Auth(verifier, log.Named("auth")), extra...)
	if err := h.RegisterSend(manager.Dispatcher()); err != nil {
		return err
	}
	manager.Start()

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if limiter != nil {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				go limiter.Run(runCtx)
			}
			return e.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return e.Shutdown(ctx)
		},
	})
	return nil
}
