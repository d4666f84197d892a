// Package api 把聊天服务挂到 HTTP 与 WebSocket 两个入口上
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// Handler 接口层
type Handler struct {
	chat     *chat.Service
	users    store.UserStore
	manager  *ws.Manager
	counters *ws.Counters
	log      logger.Logger
}

// New 创建接口层，counters 可为 nil
func New(svc *chat.Service, users store.UserStore, manager *ws.Manager, counters *ws.Counters, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		chat:     svc,
		users:    users,
		manager:  manager,
		counters: counters,
		log:      log,
	}
}

// Register 注册 HTTP 路由
// auth 作用于 /api 下全部接口，extra 追加在 auth 之后（如限流）
func (h *Handler) Register(e *qim.Engine, wsPath string, auth qim.HandlerFunc, extra ...qim.HandlerFunc) {
	root := e.RouterGroup()
	root.GET("/healthz", h.health)
	root.GET(wsPath, h.upgrade)

	r := e.Group("/api", append([]qim.HandlerFunc{auth}, extra...)...)
	h.registerUsers(r)
	h.registerConversations(r)
	h.registerMessages(r)
	h.registerNotifications(r)
	h.registerSettings(r)
}

// upgrade WebSocket 握手；升级失败时 Manager 已写出响应
func (h *Handler) upgrade(c *qim.Context) {
	if err := h.manager.HandleUpgrade(c.Writer(), c.Request()); err != nil {
		h.log.Warn("websocket upgrade failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
	}
	c.Abort()
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status      string       `json:"status"`
	Version     string       `json:"version"`
	Connections int          `json:"connections"`
	Stats       *ws.Snapshot `json:"stats,omitempty"`
}

func (h *Handler) health(c *qim.Context) {
	resp := HealthResponse{
		Status:      "ok",
		Version:     qim.Version,
		Connections: h.manager.Count(),
	}
	if h.counters != nil {
		snap := h.counters.Snapshot()
		resp.Stats = &snap
	}
	c.JSON(http.StatusOK, qim.Success(resp))
}

// principal 当前用户；Auth 中间件保证非空
func principal(c *qim.Context) string {
	return qim.GetContextUid(c)
}
