package ws

import (
	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/logger"
)

// Observer 连接生命周期观察者
// 每次状态迁移输出一条结构化日志，不能否决迁移
type Observer struct {
	log logger.Logger
}

// NewObserver 创建观察者
func NewObserver(log logger.Logger) *Observer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Observer{log: log}
}

// Attach 订阅事件总线
func (o *Observer) Attach(bus *EventBus) {
	bus.Subscribe(EventSessionConnected, o.record("session connected", "connected"))
	bus.Subscribe(EventSessionAuthenticated, o.record("session authenticated", StateAuthenticated.String()))
	bus.Subscribe(EventSessionAnonymous, o.record("session anonymous", StateAnonymous.String()))
	bus.Subscribe(EventSessionDisconnected, o.record("session disconnected", StateDisconnected.String()))
}

func (o *Observer) record(msg, transition string) EventHandler {
	return func(e Event) {
		o.log.Info(msg,
			zap.String("session_id", e.SessionID),
			zap.String("transition", transition))
	}
}
