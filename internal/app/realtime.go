package app

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/auth"
	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// realtimeModule WebSocket 路由、接入闸门与连接管理
func realtimeModule() fx.Option {
	return fx.Module("realtime",
		fx.Provide(
			ws.NewCounters,
			provideRouter,
			provideGate,
			provideManager,
		),
		fx.Invoke(registerRealtimeLifecycle),
	)
}

func provideRouter(s *config.Settings, counters *ws.Counters, client redis.UniversalClient, log logger.Logger) (*ws.Router, error) {
	policy, err := ws.ParseSlowConsumerPolicy(s.WS.SlowConsumerPolicy)
	if err != nil {
		return nil, err
	}
	opts := []ws.RouterOption{
		ws.WithRouterLogger(log.Named("router")),
		ws.WithRouterMetrics(counters),
		ws.WithSlowConsumer(policy),
	}
	if strings.EqualFold(s.Broker.Relay, "redis") {
		opts = append(opts, ws.WithRelay(ws.NewRedisRelay(client, s.Broker.Channel, log.Named("relay"))))
	}
	return ws.NewRouter(opts...), nil
}

func provideGate(s *config.Settings, verifier *auth.Verifier, log logger.Logger) (*ws.Gate, error) {
	policy, err := ws.ParseAnonymousPolicy(s.WS.AnonymousPolicy)
	if err != nil {
		return nil, err
	}
	return ws.NewGate(verifier, policy, log.Named("gate")), nil
}

func provideManager(s *config.Settings, router *ws.Router, gate *ws.Gate, counters *ws.Counters, log logger.Logger) (*ws.Manager, error) {
	opts := []ws.Option{
		ws.WithMetrics(counters),
		ws.WithHeartbeat(s.WS.HeartbeatInterval, s.WS.HeartbeatTimeout),
	}
	if s.WS.MaxConnections > 0 {
		opts = append(opts, ws.WithMaxConnections(int(s.WS.MaxConnections)))
	}
	if s.WS.MaxMessageSize > 0 {
		opts = append(opts, ws.WithMessageSizeLimit(s.WS.MaxMessageSize))
	}
	if s.WS.SendQueueSize > 0 {
		opts = append(opts, ws.WithSendQueueSize(s.WS.SendQueueSize))
	}
	opts = append(opts, ws.WithOrigins(s.WS.AllowedOrigins...))

	m, err := ws.NewManager(router, gate, log.Named("ws"), opts...)
	if err != nil {
		return nil, err
	}
	ws.NewObserver(log.Named("ws.events")).Attach(m.Events())
	return m, nil
}

// registerRealtimeLifecycle 启动时先开路由再接连接，停止顺序相反
func registerRealtimeLifecycle(lc fx.Lifecycle, router *ws.Router, manager *ws.Manager, log logger.Logger) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			if err := router.Start(runCtx); err != nil {
				cancel()
				return err
			}
			log.Info("realtime router started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := manager.Shutdown(ctx)
			if err != nil {
				log.Warn("websocket shutdown incomplete", zap.Error(err))
			}
			if cancel != nil {
				cancel()
			}
			return router.Stop()
		},
	})
}
