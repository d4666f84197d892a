package chat

import (
	"context"
	"strings"
	"time"

	"github.com/tokmz/qim/internal/store"
)

// CreateInput 创建会话
type CreateInput struct {
	Type         store.ConversationType `json:"type" binding:"required"`
	Name         string                 `json:"name"`
	Participants []string               `json:"participants"`
}

// ConversationList 会话分页
type ConversationList struct {
	Items []store.Conversation `json:"items"`
	Total int64                `json:"total"`
}

// CreateConversation 创建会话，创建者总在成员中
// 单聊必须恰好两人；群聊创建者为管理员
func (s *Service) CreateConversation(ctx context.Context, creatorID string, in CreateInput) (*store.Conversation, error) {
	participants := dedupe(append([]string{creatorID}, in.Participants...))

	conv := &store.Conversation{
		Name:         strings.TrimSpace(in.Name),
		Type:         in.Type,
		Participants: participants,
		Admins:       []string{},
	}
	switch in.Type {
	case store.ConversationDirect:
		if len(participants) != 2 {
			return nil, ErrInvalidConversation.WithMessage("单聊必须恰好两名成员")
		}
	case store.ConversationGroup:
		if len(participants) < 2 {
			return nil, ErrInvalidConversation.WithMessage("群聊至少需要两名成员")
		}
		conv.Admins = []string{creatorID}
	default:
		return nil, ErrInvalidConversation.WithMessage("会话类型必须是 direct 或 group")
	}

	for _, uid := range participants[1:] {
		if _, err := s.store.FindUser(ctx, uid); err != nil {
			return nil, ErrInvalidConversation.WithMessage("成员不存在: " + uid).WithError(err)
		}
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Conversations 用户参与的会话，最近更新的在前
func (s *Service) Conversations(ctx context.Context, userID string, page, size int) (*ConversationList, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 10
	}
	items, total, err := s.store.ListConversations(ctx, userID, store.Pagination{Page: page, Size: size})
	if err != nil {
		return nil, err
	}
	return &ConversationList{Items: items, Total: total}, nil
}

// Conversation 读取单个会话，要求是成员
func (s *Service) Conversation(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	return s.conversationFor(ctx, conversationID, userID)
}

// RenameConversation 修改会话名称，群聊只有管理员可以修改
func (s *Service) RenameConversation(ctx context.Context, userID, conversationID, name string) (*store.Conversation, error) {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv.Type == store.ConversationGroup && !conv.IsAdmin(userID) {
		return nil, ErrNotAdmin
	}
	conv.Name = strings.TrimSpace(name)
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.fanout.OnConversationSettingsChanged(ctx, conv.ID)
	return conv, nil
}

// LeaveConversation 超过两人的群聊中退出，其余情况删除整个会话
// 返回 true 表示会话已被删除
func (s *Service) LeaveConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}

	if conv.Type == store.ConversationGroup && len(conv.Participants) > 2 {
		conv.RemoveMember(userID)
		conv.UpdatedAt = time.Now().UTC()
		if err := s.store.LeaveConversation(ctx, conv, userID); err != nil {
			return false, err
		}
		s.fanout.OnConversationSettingsChanged(ctx, conv.ID)
		return false, nil
	}

	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil {
		return false, err
	}
	s.history.Invalidate(ctx, conv.ID)
	s.fanout.OnConversationSettingsChanged(ctx, conv.ID)
	return true, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
