package api

import (
	"strconv"
	"time"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/errors"
)

type historyRequest struct {
	ID     string `uri:"id"`
	Page   int    `form:"page"`
	Size   int    `form:"size"`
	Before string `form:"before"`
}

type sendRequest struct {
	ID          string   `uri:"id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

type editRequest struct {
	ID      string `uri:"id"`
	Content string `json:"content"`
}

type messageURI struct {
	ID string `uri:"id"`
}

type markAllRequest struct {
	ConversationID string `uri:"conversationId"`
}

// MarkedResponse 本次被标记已读的消息
type MarkedResponse struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

func (h *Handler) registerMessages(r *qim.RouterGroup) {
	qim.Handle[historyRequest, history.Page](r.GET, "/conversations/:id/messages", h.history)
	qim.Handle[sendRequest, store.Message](r.POST, "/conversations/:id/messages", h.sendMessage)

	g := r.Group("/messages")
	qim.Handle[editRequest, store.Message](g.PUT, "/:id", h.editMessage)
	qim.Handle0[messageURI](g.DELETE, "/:id", h.deleteMessage)
	qim.Handle[messageURI, store.Message](g.PUT, "/:id/read", h.markMessageRead)
	qim.Handle[markAllRequest, MarkedResponse](g.PUT, "/mark-all-read/:conversationId", h.markAllRead)
}

// parseBefore 支持毫秒时间戳与 RFC3339
func parseBefore(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errors.ErrBadRequest.WithMessage("before 必须是毫秒时间戳或 RFC3339 时间").WithError(err)
	}
	t = t.UTC()
	return &t, nil
}

func (h *Handler) history(c *qim.Context, req *historyRequest) (*history.Page, error) {
	before, err := parseBefore(req.Before)
	if err != nil {
		return nil, err
	}
	page, err := h.chat.History(c.RequestContext(), principal(c), history.Query{
		ConversationID: req.ID,
		Page:           req.Page,
		Size:           req.Size,
		Before:         before,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (h *Handler) sendMessage(c *qim.Context, req *sendRequest) (*store.Message, error) {
	return h.chat.Send(c.RequestContext(), chat.SendInput{
		ConversationID: req.ID,
		SenderID:       principal(c),
		Content:        req.Content,
		Attachments:    req.Attachments,
	})
}

func (h *Handler) editMessage(c *qim.Context, req *editRequest) (*store.Message, error) {
	return h.chat.Edit(c.RequestContext(), principal(c), req.ID, req.Content)
}

func (h *Handler) deleteMessage(c *qim.Context, req *messageURI) error {
	return h.chat.Delete(c.RequestContext(), principal(c), req.ID)
}

func (h *Handler) markMessageRead(c *qim.Context, req *messageURI) (*store.Message, error) {
	return h.chat.MarkRead(c.RequestContext(), principal(c), "", req.ID)
}

func (h *Handler) markAllRead(c *qim.Context, req *markAllRequest) (*MarkedResponse, error) {
	ids, err := h.chat.MarkAllRead(c.RequestContext(), req.ConversationID, principal(c))
	if err != nil {
		return nil, err
	}
	return &MarkedResponse{ConversationID: req.ConversationID, MessageIDs: ids}, nil
}
