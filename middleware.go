package qim

import (
	"errors"
	"net/http"
	"runtime/debug"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/logger"
)

// Logger 访问日志中间件，skip 中的路径不记录
// 5xx 记 Error，4xx 记 Warn，其余 Info
func Logger(log logger.Logger, skip ...string) HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *Context) {
		req := c.Request()
		if _, ok := skipped[req.URL.Path]; ok {
			c.Next()
			return
		}

		begin := time.Now()
		c.Next()

		status := c.Writer().Status()
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(begin)),
			zap.String("client_ip", c.ClientIP()),
		}

		logAt := log.InfoContext
		if status >= http.StatusInternalServerError {
			logAt = log.ErrorContext
		} else if status >= http.StatusBadRequest {
			logAt = log.WarnContext
		}
		logAt(c.RequestContext(), "request", fields...)
	}
}

// Recovery panic 恢复中间件，返回统一 500 响应
func Recovery(log logger.Logger) HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}

	return func(c *Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			path := c.Request().URL.Path

			// 客户端已断开，无法再写响应
			if err, ok := rec.(error); ok && peerGone(err) {
				log.Warn("client connection lost", zap.Error(err), zap.String("path", path))
				c.Abort()
				return
			}

			log.ErrorContext(c.RequestContext(), "panic recovered",
				zap.Any("panic", rec),
				zap.String("method", c.Request().Method),
				zap.String("path", path),
				zap.ByteString("stack", debug.Stack()),
			)
			c.Fail(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			c.Abort()
		}()
		c.Next()
	}
}

func peerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
