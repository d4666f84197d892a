package chat

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/store"
)

// SettingsInput 个人会话设置，nil 字段保持不变
type SettingsInput struct {
	Muted  *bool `json:"muted"`
	Pinned *bool `json:"pinned"`
}

// settingsFor 读取个人设置，不存在时返回未保存的默认值
func (s *Service) settingsFor(ctx context.Context, userID, conversationID string) (*store.UserConversation, error) {
	uc, err := s.store.FindUserConversation(ctx, userID, conversationID)
	if err == nil {
		return uc, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &store.UserConversation{UserID: userID, ConversationID: conversationID}, nil
}

// Settings 读取个人会话设置
func (s *Service) Settings(ctx context.Context, userID, conversationID string) (*store.UserConversation, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.settingsFor(ctx, userID, conversationID)
}

// UpdateSettings 修改静音与置顶，完成后推送 CONVERSATION_UPDATE
func (s *Service) UpdateSettings(ctx context.Context, userID, conversationID string, in SettingsInput) (*store.UserConversation, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	uc, err := s.settingsFor(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if in.Muted != nil {
		uc.Muted = *in.Muted
	}
	if in.Pinned != nil {
		uc.Pinned = *in.Pinned
	}
	if err := s.store.SaveUserConversation(ctx, uc); err != nil {
		return nil, err
	}
	s.fanout.OnConversationSettingsChanged(ctx, conversationID)
	return uc, nil
}

// MarkConversationRead 记录最后阅读时间并把会话内消息标记为已读
// 标记消息和推送的失败只记录日志
func (s *Service) MarkConversationRead(ctx context.Context, userID, conversationID string) (*store.UserConversation, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	uc, err := s.settingsFor(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	uc.LastReadAt = &now
	if err := s.store.SaveUserConversation(ctx, uc); err != nil {
		return nil, err
	}

	if _, err := s.MarkAllRead(ctx, conversationID, userID); err != nil {
		s.log.WarnContext(ctx, "mark conversation messages read failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
	s.fanout.OnConversationSettingsChanged(ctx, conversationID)
	return uc, nil
}
