// Package app 用 fx 组装 qim 服务的全部组件
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// Options 服务的完整依赖图，extra 用于测试替换或追加组件
func Options(cfg *config.Config, s *config.Settings, extra ...fx.Option) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg, s),
		fx.WithLogger(func(log logger.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.Zap(log.Named("fx"))}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		foundationModule(),
		servicesModule(),
		realtimeModule(),
		httpModule(),
		jobsModule(),
		fx.Invoke(watchConfig),
	}
	return fx.Options(append(opts, extra...)...)
}

// New 创建应用
func New(cfg *config.Config, s *config.Settings, extra ...fx.Option) *fx.App {
	return fx.New(Options(cfg, s, extra...))
}

// watchConfig 配置热更新：日志级别、匿名策略与慢消费者策略
// 其余配置项需要重启生效
func watchConfig(lc fx.Lifecycle, cfg *config.Config, log logger.Logger, gate *ws.Gate, router *ws.Router) {
	reload := func(s *config.Settings) {
		if level, err := logger.ParseLevel(s.Log.Level); err == nil && level != log.Level() {
			log.SetLevel(level)
			log.Info("log level changed", zap.Stringer("level", level))
		}
		if p, err := ws.ParseAnonymousPolicy(s.WS.AnonymousPolicy); err == nil {
			gate.SetPolicy(p)
		}
		if p, err := ws.ParseSlowConsumerPolicy(s.WS.SlowConsumerPolicy); err == nil {
			router.SetSlowConsumerPolicy(p)
		}
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cfg.OnError(func(err error) {
				log.Warn("config reload rejected", zap.Error(err))
			})
			cfg.Watch(reload)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cfg.Close()
			return nil
		},
	})
}
