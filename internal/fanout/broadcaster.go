// Package fanout 决定每类事件推送到哪些目的地
//
// 所有入口都是发出即忘：投递失败只记录日志与计数，不会返回给调用方。
package fanout

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/tracing"
	"github.com/tokmz/qim/pkg/ws"
)

// Publisher 投递到目的地，返回成功入队的会话数
// ws.Router 实现该接口
type Publisher interface {
	Publish(dest ws.Destination, payload []byte) int
	PublishToUser(userID string, payload []byte) int
}

// MessageSent 新消息事件
type MessageSent struct {
	Message store.Message
	// SenderName 发送者展示名，为空时用 "Someone"
	SenderName string
	// Participants 会话全部成员，发送者本人不会收到通知
	Participants []string
	// NotificationIDs 已持久化的通知 ID，按接收者索引，可为空
	NotificationIDs map[string]string
}

// Broadcaster 事件扇出
type Broadcaster struct {
	pub Publisher
	log logger.Logger
	now func() time.Time
}

// Option 配置项
type Option func(*Broadcaster)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(b *Broadcaster) { b.log = l }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

// New 创建扇出器
func New(pub Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{pub: pub, log: logger.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) envelope(t EnvelopeType, payload any) Envelope {
	return Envelope{Type: t, Payload: payload, Timestamp: b.now().UTC()}
}

// send 编码一次后投递到会话主题
func (b *Broadcaster) send(ctx context.Context, dest ws.Destination, env Envelope) int {
	data, err := env.Encode()
	if err != nil {
		b.log.ErrorContext(ctx, "encode envelope failed", zap.String("type", string(env.Type)), zap.Error(err))
		return 0
	}
	n := b.pub.Publish(dest, data)
	b.log.DebugContext(ctx, "envelope published",
		zap.String("type", string(env.Type)),
		zap.String("destination", string(dest)),
		zap.Int("delivered", n))
	return n
}

func (b *Broadcaster) sendToUser(ctx context.Context, userID string, env Envelope) int {
	return b.send(ctx, ws.UserQueue(userID), env)
}

// OnMessageSent 推送新消息到会话主题，并给除发送者外的每个成员推送通知
// 调用方须在消息持久化之后调用
func (b *Broadcaster) OnMessageSent(ctx context.Context, e MessageSent) {
	ctx, span := tracing.StartSpan(ctx, "fanout.message_sent")
	defer span.End()

	msg := e.Message
	delivered := b.send(ctx, ws.ConversationTopic(msg.ConversationID), b.envelope(TypeMessage, msg))

	content := NotificationContent(e.SenderName, msg.Content)
	notified := 0
	for _, uid := range e.Participants {
		if uid == msg.SenderID {
			continue
		}
		b.sendToUser(ctx, uid, b.envelope(TypeNotification, NotificationPayload{
			ID:             e.NotificationIDs[uid],
			Content:        content,
			Type:           string(store.NotificationMessage),
			SenderID:       msg.SenderID,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Timestamp:      b.now().UTC(),
		}))
		notified++
	}
	span.SetAttributes(
		attribute.String("conversation.id", msg.ConversationID),
		attribute.Int("fanout.delivered", delivered),
		attribute.Int("fanout.notified", notified),
	)
}

// OnMessageEdited 推送编辑后的完整消息
func (b *Broadcaster) OnMessageEdited(ctx context.Context, msg store.Message) {
	b.send(ctx, ws.ConversationTopic(msg.ConversationID), b.envelope(TypeMessage, msg))
}

// OnMessageDeleted 推送删除事件，只携带消息 ID
func (b *Broadcaster) OnMessageDeleted(ctx context.Context, conversationID, messageID string) {
	b.send(ctx, ws.ConversationTopic(conversationID), b.envelope(TypeDelete, DeletePayload{MessageID: messageID}))
}

// OnTyping 推送输入状态
func (b *Broadcaster) OnTyping(ctx context.Context, conversationID, userID, status string) {
	b.send(ctx, ws.ConversationTopic(conversationID), b.envelope(TypeTyping, TypingPayload{Status: status, UserID: userID}))
}

// OnReadReceipt 单条已读：同时推送到会话主题和原发送者的个人队列
// 两处收到的是同一份字节
func (b *Broadcaster) OnReadReceipt(ctx context.Context, conversationID, messageID, readerID, originalSenderID string) {
	now := b.now().UTC()
	env := Envelope{
		Type:      TypeReadReceipt,
		Payload:   ReadReceiptPayload{MessageID: messageID, ReaderUserID: readerID, Timestamp: now},
		Timestamp: now,
	}
	data, err := env.Encode()
	if err != nil {
		b.log.ErrorContext(ctx, "encode envelope failed", zap.String("type", string(env.Type)), zap.Error(err))
		return
	}
	b.pub.Publish(ws.ConversationTopic(conversationID), data)
	if originalSenderID != "" {
		b.pub.PublishToUser(originalSenderID, data)
	}
}

// OnBulkReadReceipt 批量已读，messageIDs 可以为空
func (b *Broadcaster) OnBulkReadReceipt(ctx context.Context, conversationID string, messageIDs []string, readerID string) {
	if messageIDs == nil {
		messageIDs = []string{}
	}
	now := b.now().UTC()
	b.send(ctx, ws.ConversationTopic(conversationID), Envelope{
		Type: TypeBulkReadReceipt,
		Payload: BulkReadReceiptPayload{
			MessageIDs:     messageIDs,
			ReaderUserID:   readerID,
			ConversationID: conversationID,
			Timestamp:      now,
		},
		Timestamp: now,
	})
}

// OnConversationSettingsChanged 会话设置变更标记
func (b *Broadcaster) OnConversationSettingsChanged(ctx context.Context, conversationID string) {
	b.send(ctx, ws.ConversationTopic(conversationID), b.envelope(TypeConversationUpdate, ConversationUpdatePayload{ConversationID: conversationID}))
}

// Notify 推送通知到用户个人队列
func (b *Broadcaster) Notify(ctx context.Context, userID string, n NotificationPayload) {
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now().UTC()
	}
	if n.Type == "" {
		n.Type = string(store.NotificationSystem)
	}
	b.sendToUser(ctx, userID, b.envelope(TypeNotification, n))
}
