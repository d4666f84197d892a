package fanout

import (
	"encoding/json"
	"time"
)

// EnvelopeType 推送类型
type EnvelopeType string

const (
	TypeMessage            EnvelopeType = "MESSAGE"
	TypeDelete             EnvelopeType = "DELETE"
	TypeTyping             EnvelopeType = "TYPING"
	TypeReadReceipt        EnvelopeType = "READ_RECEIPT"
	TypeBulkReadReceipt    EnvelopeType = "BULK_READ_RECEIPT"
	TypeConversationUpdate EnvelopeType = "CONVERSATION_UPDATE"
	TypeNotification       EnvelopeType = "NOTIFICATION"
)

// Envelope 推送给订阅方的统一结构
// 构造后不再修改，编码一次后同一份字节发给所有订阅者
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Payload   any          `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

// Encode 编码为 JSON
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DeletePayload 删除消息
type DeletePayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload 输入状态
type TypingPayload struct {
	Status string `json:"status"`
	UserID string `json:"userId,omitempty"`
}

// ReadReceiptPayload 单条已读回执
type ReadReceiptPayload struct {
	MessageID    string    `json:"messageId"`
	ReaderUserID string    `json:"readerUserId"`
	Timestamp    time.Time `json:"timestamp"`
}

// BulkReadReceiptPayload 批量已读回执
type BulkReadReceiptPayload struct {
	MessageIDs     []string  `json:"messageIds"`
	ReaderUserID   string    `json:"readerUserId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationUpdatePayload 会话设置变更标记，不携带差异
type ConversationUpdatePayload struct {
	ConversationID string `json:"conversationId"`
}

// NotificationPayload 通知
type NotificationPayload struct {
	ID             string    `json:"id,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	SenderID       string    `json:"senderId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NotificationContent 新消息通知文案，持久化记录与推送共用
func NotificationContent(senderName, content string) string {
	if senderName == "" {
		senderName = "Someone"
	}
	return senderName + " sent a message: " + content
}
