package store

import (
	"context"
	"math"
	"time"
)

// MaxOffset 偏移量上限
const MaxOffset = math.MaxInt32

// Pagination 分页参数，Page 从 0 开始
type Pagination struct {
	Page int
	Size int
}

// Offset 偏移量，超过 MaxOffset 时饱和而不是回绕成负数
func (p Pagination) Offset() int {
	if p.Page < 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > MaxOffset/p.Size {
		return MaxOffset
	}
	return p.Page * p.Size
}

// MessageQuery 历史消息查询
type MessageQuery struct {
	ConversationID string
	Pagination
	// Before 非空时只返回创建时间严格早于该时刻的消息
	Before *time.Time
}

// NotificationQuery 通知查询
type NotificationQuery struct {
	UserID     string
	UnreadOnly bool
	Pagination
}

// UserStore 用户
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// ConversationStore 会话与成员关系
type ConversationStore interface {
	// CreateConversation 创建会话，并为每个成员建立 UserConversation
	CreateConversation(ctx context.Context, c *Conversation) error
	FindConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations 用户参与的会话，按 UpdatedAt 倒序
	ListConversations(ctx context.Context, userID string, p Pagination) ([]Conversation, int64, error)
	UpdateConversation(ctx context.Context, c *Conversation) error
	// LeaveConversation 保存成员变更后的会话并删除该用户的成员关系
	LeaveConversation(ctx context.Context, c *Conversation, userID string) error
	// DeleteConversation 删除会话及其消息和成员关系
	DeleteConversation(ctx context.Context, id string) error
}

// MessageStore 消息
type MessageStore interface {
	CreateMessage(ctx context.Context, m *Message) error
	FindMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message) error
	DeleteMessage(ctx context.Context, id string) error
	// ListMessages 按 CreatedAt 升序分页
	ListMessages(ctx context.Context, q MessageQuery) ([]Message, int64, error)
	// UnreadMessages 会话中未读且不是 readerID 发送的消息
	UnreadMessages(ctx context.Context, conversationID, readerID string) ([]Message, error)
	// MarkMessagesRead 批量标记已读，返回实际更新数
	MarkMessagesRead(ctx context.Context, ids []string) (int64, error)
}

// NotificationStore 通知
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	FindNotification(ctx context.Context, id string) (*Notification, error)
	// ListNotifications 按 CreatedAt 倒序分页
	ListNotifications(ctx context.Context, q NotificationQuery) ([]Notification, int64, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// SettingsStore 用户会话设置
type SettingsStore interface {
	FindUserConversation(ctx context.Context, userID, conversationID string) (*UserConversation, error)
	SaveUserConversation(ctx context.Context, uc *UserConversation) error
}

// Store 持久化入口
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	NotificationStore
	SettingsStore

	Close() error
}
