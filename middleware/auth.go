package middleware

import (
	"go.uber.org/zap"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// Auth 校验 Authorization 头中的 Bearer 令牌
// 与 WebSocket CONNECT 共用同一个 Authenticator；失败直接 401，不存在匿名降级
func Auth(authenticator ws.Authenticator, log logger.Logger) qim.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}

	return func(c *qim.Context) {
		credential := c.GetHeader("Authorization")
		if credential == "" {
			c.RespondError(errors.ErrUnauthorized.WithMessage("缺少 Authorization 头"))
			c.Abort()
			return
		}

		principal, err := authenticator.Verify(c.RequestContext(), credential)
		if err != nil {
			log.WarnContext(c.RequestContext(), "rest authentication failed",
				zap.String("path", c.Request().URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			// 服务端错误原样返回，其余统一 401
			var bizErr *errors.Error
			if !errors.As(err, &bizErr) || (bizErr.HttpCode != 401 && bizErr.HttpCode < 500) {
				err = errors.ErrUnauthorized.WithError(err)
			}
			c.RespondError(err)
			c.Abort()
			return
		}

		qim.SetContextPrincipal(c, principal)
		c.SetRequestContext(logger.WithUID(c.Request().Context(), principal.UserID))
		c.Next()
	}
}
