package chat

import (
	"context"

	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/store"
)

// NotificationList 通知分页
type NotificationList struct {
	Items []store.Notification `json:"items"`
	Total int64                `json:"total"`
}

// Notifications 用户通知，新的在前
func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool, page, size int) (*NotificationList, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	items, total, err := s.store.ListNotifications(ctx, store.NotificationQuery{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Pagination: store.Pagination{Page: page, Size: size},
	})
	if err != nil {
		return nil, err
	}
	return &NotificationList{Items: items, Total: total}, nil
}

// UnreadNotifications 未读通知数
func (s *Service) UnreadNotifications(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

// MarkNotificationRead 标记单条通知已读，他人的通知视为不存在
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	n, err := s.store.FindNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return store.ErrNotFound
	}
	return s.store.MarkNotificationRead(ctx, notificationID)
}

// MarkAllNotificationsRead 标记全部通知已读，返回更新数
func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

// EchoNotification 把客户端发来的文本原样推回本人的通知队列
func (s *Service) EchoNotification(ctx context.Context, userID, message string) {
	s.fanout.Notify(ctx, userID, fanout.NotificationPayload{
		Content: message,
		Type:    string(store.NotificationSystem),
	})
}
