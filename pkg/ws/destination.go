package ws

import "strings"

// Destination 内部路由键
// conversation:{id} 为会话主题，user:{id} 为用户私有队列
type Destination string

const (
	conversationPrefix = "conversation:"
	userPrefix         = "user:"
)

// 客户端可见路径
const (
	TopicConversationsPrefix = "/topic/conversations/"
	UserNotificationsQueue   = "/user/queue/notifications"
)

// ConversationTopic 会话主题
func ConversationTopic(conversationID string) Destination {
	return Destination(conversationPrefix + conversationID)
}

// UserQueue 用户私有队列
func UserQueue(userID string) Destination {
	return Destination(userPrefix + userID)
}

// IsConversation 是否为会话主题
func (d Destination) IsConversation() bool {
	return strings.HasPrefix(string(d), conversationPrefix)
}

// IsUserQueue 是否为用户队列
func (d Destination) IsUserQueue() bool {
	return strings.HasPrefix(string(d), userPrefix)
}

// ID 返回主题或队列所属的会话/用户 ID
func (d Destination) ID() string {
	switch {
	case d.IsConversation():
		return strings.TrimPrefix(string(d), conversationPrefix)
	case d.IsUserQueue():
		return strings.TrimPrefix(string(d), userPrefix)
	}
	return ""
}

// ExternalPath 映射回客户端订阅时使用的路径
func (d Destination) ExternalPath() string {
	switch {
	case d.IsConversation():
		return TopicConversationsPrefix + d.ID()
	case d.IsUserQueue():
		return UserNotificationsQueue
	}
	return string(d)
}

// ResolveSubscription 把客户端订阅路径解析为内部路由键
// 用户队列总是解析到当前主体自己的队列，匿名会话无法订阅
func ResolveSubscription(path string, p *Principal) (Destination, error) {
	switch {
	case strings.HasPrefix(path, TopicConversationsPrefix):
		id := strings.TrimPrefix(path, TopicConversationsPrefix)
		if id == "" || strings.Contains(id, "/") {
			return "", ErrInvalidDestination
		}
		return ConversationTopic(id), nil
	case path == UserNotificationsQueue:
		if p == nil {
			return "", ErrUnauthenticated
		}
		return UserQueue(p.UserID), nil
	}
	return "", ErrInvalidDestination
}
