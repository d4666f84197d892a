package store

import (
	"strings"
	"time"
)

// ConversationType 会话类型
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotificationMessage NotificationType = "MESSAGE"
	NotificationSystem  NotificationType = "SYSTEM"
)

// User 用户
type User struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Username       string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email          string    `gorm:"index;size:128" json:"email"`
	PasswordHash   string    `gorm:"size:255" json:"-"`
	FirstName      string    `gorm:"size:64" json:"firstName"`
	LastName       string    `gorm:"size:64" json:"lastName"`
	ProfilePicture string    `gorm:"size:512" json:"profilePicture,omitempty"`
	Status         string    `gorm:"size:32" json:"status,omitempty"`
	LastSeen       time.Time `json:"lastSeen"`
	Authorities    []string  `gorm:"type:text;serializer:json" json:"authorities"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DisplayName 展示名：名 + 姓，其次用户名，都为空时为 "Someone"
func (u *User) DisplayName() string {
	if u == nil {
		return "Someone"
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}

// Conversation 会话
type Conversation struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	Name         string           `gorm:"size:128" json:"name"`
	Type         ConversationType `gorm:"size:16;not null" json:"type"`
	Participants []string         `gorm:"type:text;serializer:json" json:"participants"`
	Admins       []string         `gorm:"type:text;serializer:json" json:"admins"`
	LastMessage  *Message         `gorm:"type:text;serializer:json" json:"lastMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `gorm:"index" json:"updatedAt"`
}

// HasParticipant 用户是否为会话成员
func (c *Conversation) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

// IsAdmin 用户是否为会话管理员
func (c *Conversation) IsAdmin(userID string) bool {
	return contains(c.Admins, userID)
}

// RemoveMember 从成员与管理员中移除用户
func (c *Conversation) RemoveMember(userID string) {
	c.Participants = remove(c.Participants, userID)
	c.Admins = remove(c.Admins, userID)
}

// Message 消息
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"index:idx_message_conversation_created,priority:1;size:36;not null" json:"conversationId"`
	SenderID       string    `gorm:"size:36;not null" json:"senderId"`
	Content        string    `gorm:"type:text" json:"content"`
	Attachments    []string  `gorm:"type:text;serializer:json" json:"attachments"`
	Read           bool      `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_message_conversation_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Notification 通知
type Notification struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	UserID         string           `gorm:"index;size:36;not null" json:"userId"`
	Type           NotificationType `gorm:"size:32" json:"type"`
	SenderID       string           `gorm:"size:36" json:"senderId,omitempty"`
	ConversationID string           `gorm:"size:36" json:"conversationId,omitempty"`
	MessageID      string           `gorm:"size:36" json:"messageId,omitempty"`
	Content        string           `gorm:"type:text" json:"content"`
	IsRead         bool             `gorm:"not null;default:false" json:"isRead"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// UserConversation 用户在会话中的个人设置，同时作为成员关系
type UserConversation struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         string     `gorm:"uniqueIndex:idx_user_conversation,priority:1;size:36;not null" json:"userId"`
	ConversationID string     `gorm:"uniqueIndex:idx_user_conversation,priority:2;size:36;not null" json:"conversationId"`
	Muted          bool       `json:"muted"`
	Pinned         bool       `json:"pinned"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Models 需要迁移的全部模型
func Models() []any {
	return []any{&User{}, &Conversation{}, &Message{}, &Notification{}, &UserConversation{}}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
