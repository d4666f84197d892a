package qim

import (
	"io"
	"runtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version 版本号
const Version = "0.3.0"

// printBanner 启动时记录监听地址与路由表
func (e *Engine) printBanner(addr string) {
	e.log.Info("http server listening",
		zap.String("addr", addr),
		zap.String("mode", e.config.Mode),
		zap.String("version", Version),
		zap.String("go", runtime.Version()),
	)

	for _, r := range e.engine.Routes() {
		e.log.Debug("route",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("handler", r.Handler),
		)
	}
}

// silenceGin 静默 Gin 的默认输出，统一走 logger
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}
