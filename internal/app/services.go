package app

import (
	"go.uber.org/fx"

	"github.com/tokmz/qim/internal/auth"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/cache"
	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// AuthConfig 由配置生成令牌参数
func AuthConfig(s *config.Settings) auth.Config {
	return auth.Config{Secret: s.Auth.Secret, Issuer: s.Auth.Issuer, TTL: s.Auth.TokenTTL}
}

// servicesModule 认证、扇出、历史与聊天服务
func servicesModule() fx.Option {
	return fx.Module("services",
		fx.Provide(
			func(s *config.Settings, st store.Store, log logger.Logger) *auth.Verifier {
				return auth.NewVerifier(AuthConfig(s), st, log.Named("auth"))
			},
			func(s *config.Settings) *auth.Issuer {
				return auth.NewIssuer(AuthConfig(s))
			},
			func(router *ws.Router, log logger.Logger) *fanout.Broadcaster {
				return fanout.New(router, fanout.WithLogger(log.Named("fanout")))
			},
			func(s *config.Settings, st store.Store, c cache.Cache, log logger.Logger) *history.Service {
				return history.New(st, c, history.Config{
					MaxPageSize:       s.History.MaxPageSize,
					TTL:               s.History.TTL,
					InvalidateOnWrite: s.History.InvalidateOnWrite,
				}, log.Named("history"))
			},
			func(st store.Store, b *fanout.Broadcaster, h *history.Service, log logger.Logger) *chat.Service {
				return chat.New(st, b, h, log.Named("chat"))
			},
		),
		// 订阅鉴权依赖聊天服务，而聊天服务经由路由扇出，只能在构建后回填
		fx.Invoke(func(gate *ws.Gate, svc *chat.Service) {
			gate.SetGuard(svc.SubscriptionGuard())
		}),
	)
}
