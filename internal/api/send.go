package api

import (
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/pkg/ws"
)

// SEND 目的地
const (
	DestSendMessage  = "/app/conversations/{id}/messages"
	DestTyping       = "/app/conversations/{id}/typing"
	DestMarkRead     = "/app/conversations/{id}/read"
	DestChatRead     = "/app/chat/{id}/read"
	DestChatReadBulk = "/app/chat/{id}/read-bulk"
	DestNotification = "/app/notifications"
)

type wsSendMessage struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

type wsTyping struct {
	Status string `json:"status"`
}

type wsReadReceipt struct {
	MessageID string `json:"messageId"`
}

type wsBulkRead struct {
	MessageIDs []string `json:"messageIds"`
}

type wsNotification struct {
	Message string `json:"message"`
}

// RegisterSend 注册 WebSocket SEND 处理器，需在 Manager.Start 之前调用
func (h *Handler) RegisterSend(d *ws.Dispatcher) error {
	registrations := []func() error{
		func() error { return ws.HandleSend(d, DestSendMessage, h.onSendMessage) },
		func() error { return ws.HandleSend(d, DestTyping, h.onTyping) },
		func() error { return ws.HandleSend(d, DestMarkRead, h.onMarkRead) },
		func() error { return ws.HandleSend(d, DestChatRead, h.onMarkRead) },
		func() error { return ws.HandleSend(d, DestChatReadBulk, h.onBulkRead) },
		func() error { return ws.HandleSend(d, DestNotification, h.onNotification) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// sender SEND 的发起用户，Gate 已拒绝匿名会话
func sender(s *ws.Session) (string, error) {
	p := s.Principal()
	if p == nil {
		return "", ws.ErrUnauthenticated
	}
	return p.UserID, nil
}

func (h *Handler) onSendMessage(s *ws.Session, r *ws.Request, req *wsSendMessage) error {
	uid, err := sender(s)
	if err != nil {
		return err
	}
	_, err = h.chat.Send(r.Ctx, chat.SendInput{
		ConversationID: r.Param("id"),
		SenderID:       uid,
		Content:        req.Content,
		Attachments:    req.Attachments,
	})
	return err
}

func (h *Handler) onTyping(s *ws.Session, r *ws.Request, req *wsTyping) error {
	uid, err := sender(s)
	if err != nil {
		return err
	}
	return h.chat.Typing(r.Ctx, r.Param("id"), uid, req.Status)
}

func (h *Handler) onMarkRead(s *ws.Session, r *ws.Request, req *wsReadReceipt) error {
	uid, err := sender(s)
	if err != nil {
		return err
	}
	if req.MessageID == "" {
		return chat.ErrInvalidConversation.WithMessage("messageId 不能为空")
	}
	_, err = h.chat.MarkRead(r.Ctx, uid, r.Param("id"), req.MessageID)
	return err
}

func (h *Handler) onBulkRead(s *ws.Session, r *ws.Request, req *wsBulkRead) error {
	uid, err := sender(s)
	if err != nil {
		return err
	}
	_, err = h.chat.MarkListRead(r.Ctx, r.Param("id"), uid, req.MessageIDs)
	return err
}

func (h *Handler) onNotification(s *ws.Session, r *ws.Request, req *wsNotification) error {
	uid, err := sender(s)
	if err != nil {
		return err
	}
	h.chat.EchoNotification(r.Ctx, uid, req.Message)
	return nil
}
