// Package chat 会话、消息、通知与个人设置的业务逻辑
//
// 写路径先持久化，再推送；推送失败不影响写入结果。
package chat

import (
	"context"
	stderrors "errors"

	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// Broadcaster 推送入口，fanout.Broadcaster 实现该接口
type Broadcaster interface {
	OnMessageSent(ctx context.Context, e fanout.MessageSent)
	OnMessageEdited(ctx context.Context, msg store.Message)
	OnMessageDeleted(ctx context.Context, conversationID, messageID string)
	OnTyping(ctx context.Context, conversationID, userID, status string)
	OnReadReceipt(ctx context.Context, conversationID, messageID, readerID, originalSenderID string)
	OnBulkReadReceipt(ctx context.Context, conversationID string, messageIDs []string, readerID string)
	OnConversationSettingsChanged(ctx context.Context, conversationID string)
	Notify(ctx context.Context, userID string, n fanout.NotificationPayload)
}

var _ Broadcaster = (*fanout.Broadcaster)(nil)

// Service 聊天业务
type Service struct {
	store   store.Store
	fanout  Broadcaster
	history *history.Service
	log     logger.Logger
}

// New 创建聊天业务
func New(s store.Store, b Broadcaster, h *history.Service, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: s, fanout: b, history: h, log: log}
}

// conversationFor 读取会话并校验成员资格
func (s *Service) conversationFor(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// SubscriptionGuard 订阅会话主题时要求是会话成员
// 匿名会话（public 策略）不做成员校验
func (s *Service) SubscriptionGuard() ws.SubscriptionGuard {
	return func(ctx context.Context, p *ws.Principal, dest ws.Destination) error {
		if p == nil || !dest.IsConversation() {
			return nil
		}
		_, err := s.conversationFor(ctx, dest.ID(), p.UserID)
		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, store.ErrNotFound), stderrors.Is(err, ErrNotParticipant):
			return ws.ErrForbidden.WithError(err)
		default:
			return err
		}
	}
}
