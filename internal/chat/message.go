package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
)

// SendInput 发送消息
type SendInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachments    []string
}

// Send 发送消息
// 顺序：保存消息，更新会话最后一条消息，保存通知，最后推送
func (s *Service) Send(ctx context.Context, in SendInput) (*store.Message, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	conv, err := s.conversationFor(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		Read:           false,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	conv.LastMessage = msg
	conv.UpdatedAt = msg.CreatedAt
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		s.log.WarnContext(ctx, "update last message failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	s.history.Invalidate(ctx, conv.ID)

	senderName := s.senderName(ctx, in.SenderID)
	content := fanout.NotificationContent(senderName, msg.Content)
	ids := make(map[string]string, len(conv.Participants))
	for _, uid := range conv.Participants {
		if uid == in.SenderID {
			continue
		}
		n := &store.Notification{
			UserID:         uid,
			Type:           store.NotificationMessage,
			SenderID:       in.SenderID,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Content:        content,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.log.WarnContext(ctx, "save notification failed", zap.String("user_id", uid), zap.Error(err))
			continue
		}
		ids[uid] = n.ID
	}

	s.fanout.OnMessageSent(ctx, fanout.MessageSent{
		Message:         *msg,
		SenderName:      senderName,
		Participants:    conv.Participants,
		NotificationIDs: ids,
	})
	return msg, nil
}

func (s *Service) senderName(ctx context.Context, userID string) string {
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return "Someone"
	}
	return u.DisplayName()
}

// ownMessage 读取消息并校验是发送者本人
func (s *Service) ownMessage(ctx context.Context, userID, messageID string) (*store.Message, error) {
	msg, err := s.store.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotSender
	}
	return msg, nil
}

// Edit 修改消息内容，只有发送者可以修改
func (s *Service) Edit(ctx context.Context, userID, messageID, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	msg.Content = content
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.history.Invalidate(ctx, msg.ConversationID)
	s.fanout.OnMessageEdited(ctx, *msg)
	return msg, nil
}

// Delete 删除消息，只有发送者可以删除
func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMessage(ctx, msg.ID); err != nil {
		return err
	}
	s.history.Invalidate(ctx, msg.ConversationID)
	s.fanout.OnMessageDeleted(ctx, msg.ConversationID, msg.ID)
	return nil
}

// History 分页读取历史消息，要求是会话成员
func (s *Service) History(ctx context.Context, userID string, q history.Query) (history.Page, error) {
	if _, err := s.conversationFor(ctx, q.ConversationID, userID); err != nil {
		return history.Page{}, err
	}
	return s.history.Messages(ctx, q), nil
}

// Typing 推送输入状态
func (s *Service) Typing(ctx context.Context, conversationID, userID, status string) error {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return err
	}
	s.fanout.OnTyping(ctx, conversationID, userID, status)
	return nil
}

// MarkRead 标记单条消息已读，并通知会话和原发送者
// conversationID 为空时不校验消息归属
func (s *Service) MarkRead(ctx context.Context, readerID, conversationID, messageID string) (*store.Message, error) {
	msg, err := s.store.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if conversationID != "" && msg.ConversationID != conversationID {
		return nil, store.ErrNotFound
	}
	if _, err := s.conversationFor(ctx, msg.ConversationID, readerID); err != nil {
		return nil, err
	}

	if !msg.Read {
		if _, err := s.store.MarkMessagesRead(ctx, []string{msg.ID}); err != nil {
			return nil, err
		}
		msg.Read = true
	}
	s.fanout.OnReadReceipt(ctx, msg.ConversationID, msg.ID, readerID, msg.SenderID)
	return msg, nil
}

// MarkAllRead 把会话中他人发送的未读消息全部标记为已读
// 总是推送 BULK_READ_RECEIPT，没有可标记的消息时 ID 列表为空
func (s *Service) MarkAllRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	if _, err := s.conversationFor(ctx, conversationID, readerID); err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadMessages(ctx, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.ID)
	}
	if len(ids) > 0 {
		if _, err := s.store.MarkMessagesRead(ctx, ids); err != nil {
			return nil, err
		}
	}
	s.fanout.OnBulkReadReceipt(ctx, conversationID, ids, readerID)
	return ids, nil
}

// MarkListRead 只标记给定 ID 中属于该会话、他人发送且未读的消息
// 返回本次实际标记的 ID，重复调用时为空
func (s *Service) MarkListRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]string, error) {
	if _, err := s.conversationFor(ctx, conversationID, readerID); err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadMessages(ctx, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	ids := make([]string, 0, len(messageIDs))
	for _, m := range unread {
		if _, ok := wanted[m.ID]; ok {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) > 0 {
		if _, err := s.store.MarkMessagesRead(ctx, ids); err != nil {
			return nil, err
		}
	}
	s.fanout.OnBulkReadReceipt(ctx, conversationID, ids, readerID)
	return ids, nil
}
